package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/app"
	"github.com/your-org/attendance/internal/gateway"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/internal/vision/cascade"
)

var (
	enrollName       string
	enrollEmail      string
	enrollDepartment string
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <external-key> <image>...",
	Short: "Register an identity and add face samples from image files",
	Long: `Creates the identity when --name is given (an existing key is reused),
then stores the largest face found in each image as a training sample.
Run "attendctl train" afterwards, or let the worker pick up the queued job.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringVar(&enrollName, "name", "", "display name; creates the identity")
	enrollCmd.Flags().StringVar(&enrollEmail, "email", "", "contact email")
	enrollCmd.Flags().StringVar(&enrollDepartment, "department", "", "department")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	locator, err := cascade.NewLocator(rt.cfg.Vision)
	if err != nil {
		return err
	}
	defer locator.Close()

	var training gateway.TrainingRequester
	if rt.producer != nil {
		training = rt.producer
	}
	enroller := gateway.NewEnroller(rt.store, rt.objects, app.NewIntake(rt.cfg.Vision), locator, training)

	key, images := args[0], args[1:]
	out := cmd.OutOrStdout()

	if enrollName != "" {
		ident := &models.Identity{ExternalKey: key, Name: enrollName, Email: enrollEmail, Department: enrollDepartment}
		switch err := enroller.Enroll(ctx, ident); {
		case errors.Is(err, storage.ErrDuplicateKey):
			fmt.Fprintf(out, "identity %s already exists\n", key)
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "enrolled %s (%s) as id %d\n", ident.Name, ident.ExternalKey, ident.ID)
		}
	}

	added := 0
	var identityID int64
	for _, path := range images {
		smp, err := enroller.AddSample(ctx, key, vision.FileSource(path))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		added++
		identityID = smp.IdentityID
		fmt.Fprintf(out, "%s: sample %s (%dx%d)\n", path, smp.ID, smp.Width, smp.Height)
	}

	if added == 0 {
		if len(images) > 0 {
			return fmt.Errorf("no samples stored for %s", key)
		}
		return nil
	}
	if err := enroller.RequestRetrain(ctx, "attendctl enroll", identityID); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return nil
}
