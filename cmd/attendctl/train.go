package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/app"
	"github.com/your-org/attendance/internal/models"
)

var trainQueue bool

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Rebuild the face model from every stored sample",
	Long: `Trains a new model over the full enrolled corpus, persists it and makes it
current. With --queue the request is handed to the training worker instead.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().BoolVar(&trainQueue, "queue", false, "publish a training job instead of training locally")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if trainQueue {
		if rt.producer == nil {
			return fmt.Errorf("--queue needs nats.url")
		}
		job := models.TrainingJob{JobID: uuid.New(), Reason: "attendctl", RequestedAt: time.Now().UTC()}
		if err := rt.producer.RequestTraining(ctx, job); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued training job %s\n", job.JobID)
		return nil
	}

	locker, closeLock, err := app.TrainingLocker(ctx, rt.cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLock()

	trainer := app.NewTrainer(rt.cfg, rt.store, rt.objects, rt.snapshots, rt.holder, locker)
	m, err := trainer.Train(ctx)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "model %s: %d identities, %d samples\n", m.Version, m.LabelCount(), m.SampleCount())

	if rt.producer != nil {
		evt := models.ModelUpdated{Version: m.Version, Labels: m.LabelCount(), Samples: m.SampleCount(), TrainedAt: m.TrainedAt}
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rt.producer.PublishModelUpdated(pubCtx, evt); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: announce model: %v\n", err)
		}
	}
	return nil
}
