package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/core/ports"
	"github.com/kirillkom/claim-intake/internal/infrastructure/setup"
)

// Runtime is the wired application a command drives.
type Runtime struct {
	Intake    ports.ClaimIntakeService
	Samples   ports.SampleCatalog
	LoadImage func(path string) (domain.SourceImage, error)
	Close     func()
}

// RuntimeFactory builds a Runtime whose intake reports every view change to
// listener.
type RuntimeFactory func(ctx context.Context, listener func(domain.ClaimView)) (*Runtime, error)

func NewRootCommand(factory RuntimeFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "claim-intake",
		Short: "Submit vehicle damage photos for description and adjuster triage",
		Long: `claim-intake uploads a damage photo, streams the generated damage
description as it is produced, then reveals the adjuster recommendations.

Examples:
  claim-intake submit --image ./photos/bumper.jpg
  claim-intake submit --sample hail_damage.jpg
  claim-intake samples
  claim-intake index-config --format yaml`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newSubmitCommand(factory),
		newSamplesCommand(factory),
		newIndexConfigCommand(),
	)
	return root
}

func newSubmitCommand(factory RuntimeFactory) *cobra.Command {
	var (
		imagePath  string
		sampleName string
		follow     bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one image and follow its description and triage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			imagePath = strings.TrimSpace(imagePath)
			sampleName = strings.TrimSpace(sampleName)
			if (imagePath == "") == (sampleName == "") {
				return errors.New("exactly one of --image or --sample is required")
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			renderer := NewRenderer(out)
			rt, err := factory(ctx, renderer.OnView)
			if err != nil {
				return err
			}
			if rt.Close != nil {
				defer rt.Close()
			}

			img, err := loadSource(ctx, rt, imagePath, sampleName)
			if err != nil {
				return err
			}
			if _, err := rt.Intake.SelectImage(img); err != nil {
				return err
			}
			handle, err := rt.Intake.Submit(ctx)
			if err != nil {
				return err
			}

			if err := handle.WaitDescription(ctx); err != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, RenderSummary(rt.Intake.View()))
				return err
			}
			triageErr := handle.WaitTriage(ctx)
			if follow {
				select {
				case <-renderer.Settled():
				case <-ctx.Done():
					return ctx.Err()
				}
			} else if view := rt.Intake.View(); view.Adjuster != nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, RenderPanel(view))
			}
			fmt.Fprintln(out, RenderSummary(rt.Intake.View()))
			return triageErr
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Path of a local damage photo")
	cmd.Flags().StringVarP(&sampleName, "sample", "s", "", "Name of a gallery sample image")
	cmd.Flags().BoolVar(&follow, "follow", true, "Wait for the review notifications before exiting")
	return cmd
}

func loadSource(ctx context.Context, rt *Runtime, imagePath, sampleName string) (domain.SourceImage, error) {
	if imagePath != "" {
		if rt.LoadImage == nil {
			return domain.SourceImage{}, errors.New("local images are not supported")
		}
		return rt.LoadImage(imagePath)
	}
	return rt.Samples.FetchSample(ctx, sampleName)
}

func newSamplesCommand(factory RuntimeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the sample gallery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := factory(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if rt.Close != nil {
				defer rt.Close()
			}

			names, err := rt.Samples.ListSamples(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No sample images available"))
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Sample images (%d)", len(names))))
			for _, name := range names {
				fmt.Fprintln(out, "  "+name)
			}
			return nil
		},
	}
}

func newIndexConfigCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "index-config",
		Short: "Print the description vector index definition and the seed import command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if err := setup.WriteIndexConfig(out, setup.DefaultIndexConfig(), format); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "# seed the policy collection with:")
			fmt.Fprintln(cmd.ErrOrStderr(), "# "+setup.ImportCommand(setup.DefaultImportSpec()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}
