package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forPelevin/clipscout/internal/pipeline"
	"github.com/forPelevin/clipscout/internal/types"
)

func newClipsCmd() *cobra.Command {
	clips := &cobra.Command{Use: "clips", Short: "Review generated clips"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's clips, best first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, sourceID, err := userAndOptionalSource(cmd)
			if err != nil {
				return err
			}
			status, _ := cmd.Flags().GetString("status")
			return withApp(cmd, configFromEnv(), time.Minute, func(ctx context.Context, app *pipeline.App) error {
				list, err := app.Review.List(ctx, userID, sourceID, types.ClipStatus(status))
				if err != nil {
					return err
				}
				out := make([]clipOutput, 0, len(list))
				for _, c := range list {
					out = append(out, toClipOutput(c))
				}
				return printJSON(cmd, map[string]any{"clips": out})
			})
		},
	}
	list.Flags().String("user", "", "Owner user id")
	list.Flags().String("source", "", "Only clips of this source")
	list.Flags().String("status", "", "suggested, approved, exported or posted")

	export := &cobra.Command{
		Use:   "export",
		Short: "Export approved clips and mark them exported",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, sourceID, err := userAndOptionalSource(cmd)
			if err != nil {
				return err
			}
			outPath, _ := cmd.Flags().GetString("out")
			return withApp(cmd, configFromEnv(), time.Minute, func(ctx context.Context, app *pipeline.App) error {
				items, err := app.Review.Export(ctx, userID, sourceID)
				if err != nil {
					return err
				}
				if outPath == "" {
					return printJSON(cmd, items)
				}
				b, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(outPath, b, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				return printJSON(cmd, map[string]any{"exported": len(items), "path": outPath})
			})
		},
	}
	export.Flags().String("user", "", "Owner user id")
	export.Flags().String("source", "", "Only clips of this source")
	export.Flags().String("out", "", "Write the export to this file instead of stdout")

	clips.AddCommand(
		list,
		export,
		clipActionCmd("approve", "Approve a suggested clip", func(app *pipeline.App) clipAction { return app.Review.Approve }),
		clipActionCmd("posted", "Mark an exported clip as posted", func(app *pipeline.App) clipAction { return app.Review.MarkPosted }),
		clipActionCmd("dismiss", "Delete a clip", func(app *pipeline.App) clipAction { return app.Review.Dismiss }),
	)
	return clips
}

type clipAction func(ctx context.Context, userID, clipID uuid.UUID) error

func clipActionCmd(use, short string, pick func(*pipeline.App) clipAction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <clip-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clipID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("clip id: %w", err)
			}
			rawUser, _ := cmd.Flags().GetString("user")
			userID, err := uuid.Parse(rawUser)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			return withApp(cmd, configFromEnv(), time.Minute, func(ctx context.Context, app *pipeline.App) error {
				if err := pick(app)(ctx, userID, clipID); err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{"id": clipID, "done": use})
			})
		},
	}
	cmd.Flags().String("user", "", "Owner user id")
	return cmd
}

func userAndOptionalSource(cmd *cobra.Command) (uuid.UUID, uuid.UUID, error) {
	rawUser, _ := cmd.Flags().GetString("user")
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--user: %w", err)
	}
	rawSource, _ := cmd.Flags().GetString("source")
	if rawSource == "" {
		return userID, uuid.Nil, nil
	}
	sourceID, err := uuid.Parse(rawSource)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("--source: %w", err)
	}
	return userID, sourceID, nil
}
