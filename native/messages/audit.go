package messages

import "fmt"

// TryState audits stored lane records for internal consistency. Pruning and
// the received-nonce advance are one atomic step, so a confirmed-but-unpruned
// lane means storage was corrupted or written by a buggy release.
func TryState(store LaneStore) error {
	var unpruned []LaneID
	err := store.ForEachOutboundLane(func(lane LaneID, data OutboundLaneData) error {
		if data.OldestUnprunedNonce <= data.LatestReceivedNonce {
			unpruned = append(unpruned, lane)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(unpruned) > 0 {
		return fmt.Errorf("messages: found unpruned lanes %v", unpruned)
	}
	return nil
}
