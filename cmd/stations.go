package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stationsCmd = &cobra.Command{
	Use:   "stations <train_number>",
	Short: "Print a train's published route",
	Args:  cobra.ExactArgs(1),
	RunE:  stations,
}

func stations(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.Close()

	manager := buildManager(cfg, st)
	sched, err := manager.LoadSchedule(cfg.Feed.ScheduleURL)
	if err != nil {
		return err
	}

	route := sched.FindRoute(args[0])
	if route == nil {
		return fmt.Errorf("no route for train %s", args[0])
	}

	dists := sched.StopDistancesKm(route)
	fmt.Printf("%s %s\n", route.TrainNumber, route.TrainName)
	for i, stop := range route.Stations {
		fmt.Printf("%3d  %-30s arr %-6s dep %-6s %7.1f km\n",
			i+1, stop.StationName, stop.ArrivalTime, stop.DepartureTime, dists[i])
	}

	return nil
}
