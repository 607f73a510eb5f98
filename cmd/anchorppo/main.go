// Command anchorppo trains a PPO agent with policy anchoring on a
// schedule of morphology variants of the half cheetah.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/samuelfneumann/anchorppo/config"
	"github.com/samuelfneumann/anchorppo/environment/envconfig"
	"github.com/samuelfneumann/anchorppo/experiment"
	"github.com/spf13/cobra"
)

// paramsEnv names the environment variable holding the default
// directory of experiment configurations
const paramsEnv = "ANCHORPPO_PARAMS"

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd := &cobra.Command{
		Use:   "anchorppo",
		Short: "Continual PPO training with dynamic policy anchoring",
	}

	var exptID, params string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the experiment described by <params>/<expt-id>.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(exptID, params)
		},
	}
	defaultParams := os.Getenv(paramsEnv)
	if defaultParams == "" {
		defaultParams = "params"
	}
	runCmd.Flags().StringVar(&exptID, "expt-id", "", "experiment id")
	runCmd.Flags().StringVar(&params, "params", defaultParams,
		"directory of experiment configurations (env "+paramsEnv+")")
	runCmd.MarkFlagRequired("expt-id")

	backendsCmd := &cobra.Command{
		Use:   "backends",
		Short: "List the environment backends built into this binary",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range envconfig.Registered() {
				fmt.Println(name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, backendsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(exptID, params string) error {
	cfg, err := config.Load(params, exptID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Println("interrupted, stopping after the current iteration")
		cancel()
	}()

	env, err := cfg.Environment.Create(cfg.Seed)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer env.Close()

	driver, err := experiment.NewDriver(cfg, env, cfg.Seed)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer driver.Close()

	c := driver.Context()
	log.Printf("experiment %v: %v", cfg.ExptID, &c)

	err = driver.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Printf("experiment %v stopped: %v", cfg.ExptID, err)
		return nil
	}
	return err
}
