package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"lanebridge/config"
	"lanebridge/native/messages"
	"lanebridge/observability/logging"
	"lanebridge/state"
	"lanebridge/storage"
)

type laneReport struct {
	Lane                 string `json:"lane"`
	State                string `json:"state"`
	LatestGeneratedNonce uint64 `json:"latestGeneratedNonce"`
	LatestReceivedNonce  uint64 `json:"latestReceivedNonce"`
	QueuedMessages       uint64 `json:"queuedMessages"`
}

type auditReport struct {
	OperatingMode string       `json:"operatingMode"`
	OutboundLanes []laneReport `json:"outboundLanes"`
}

func main() {
	configPath := flag.String("config", "./config.toml", "Path to bridge configuration file")
	flag.Parse()

	logger := logging.Setup("laneaudit", os.Getenv("LANEBRIDGE_ENV"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store := messages.NewStore(state.NewManager(db))

	report := auditReport{}
	mode, err := store.OperatingMode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read operating mode: %v\n", err)
		os.Exit(1)
	}
	report.OperatingMode = mode.String()

	err = store.ForEachOutboundLane(func(lane messages.LaneID, data messages.OutboundLaneData) error {
		report.OutboundLanes = append(report.OutboundLanes, laneReport{
			Lane:                 lane.String(),
			State:                data.State.String(),
			LatestGeneratedNonce: uint64(data.LatestGeneratedNonce),
			LatestReceivedNonce:  uint64(data.LatestReceivedNonce),
			QueuedMessages:       data.QueuedMessages().SaturatingLen(),
		})
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to walk outbound lanes: %v\n", err)
		os.Exit(1)
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))

	if err := messages.TryState(store); err != nil {
		logger.Error("consistency audit failed", "err", err)
		os.Exit(1)
	}
}
