package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/output"
	"github.com/ALT-F4-LLC/porter/internal/pipeline"
	"github.com/ALT-F4-LLC/porter/internal/render"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the catalog to a portable archive",
}

// filterFlags maps CLI flags to filter payload keys.
var filterFlags = []struct {
	flag, key, usage string
}{
	{"status", "product_status", "Product statuses (default publish)"},
	{"type", "product_types", "Product types"},
	{"stock-status", "stock_status", "Stock statuses"},
	{"category", "product_categories", "Category ids or slugs"},
	{"tag", "product_tags", "Tag ids or slugs"},
	{"shipping-class", "shipping_classes", "Shipping class ids or slugs"},
}

func addFilterFlags(cmd *cobra.Command) {
	for _, f := range filterFlags {
		cmd.Flags().StringSlice(f.flag, nil, f.usage)
	}
	cmd.Flags().String("from", "", "Created on or after (YYYY-MM-DD or RFC3339)")
	cmd.Flags().String("to", "", "Created on or before (YYYY-MM-DD or RFC3339)")
	cmd.Flags().String("filters", "", "Filter payload as JSON; flags override its keys")
}

// filterPayload builds the loosely typed filter payload from flags.
func filterPayload(cmd *cobra.Command) (map[string]any, error) {
	payload := map[string]any{}
	if raw, _ := cmd.Flags().GetString("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, cmdErr(fmt.Errorf("invalid --filters: %w", err), output.ErrValidation)
		}
	}
	for _, f := range filterFlags {
		if cmd.Flags().Changed(f.flag) {
			vals, _ := cmd.Flags().GetStringSlice(f.flag)
			payload[f.key] = vals
		}
	}
	if v, _ := cmd.Flags().GetString("from"); v != "" {
		payload["date_from"] = v
	}
	if v, _ := cmd.Flags().GetString("to"); v != "" {
		payload["date_to"] = v
	}
	return payload, nil
}

func exportOptionsPayload(cmd *cobra.Command) map[string]any {
	opts := map[string]any{}
	for _, o := range []struct{ flag, key string }{
		{"no-images", "include_images"},
		{"no-variations", "include_variations"},
		{"no-attributes", "include_attributes"},
		{"no-meta", "include_meta"},
	} {
		off, _ := cmd.Flags().GetBool(o.flag)
		opts[o.key] = !off
	}
	return opts
}

var exportPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Count the products an export would include",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		filters, err := filterPayload(cmd)
		if err != nil {
			return err
		}
		res, err := a.pipeline.PreviewExport(cmd.Context(), a.operator, filters)
		if err != nil {
			return pipelineErr(err)
		}
		w.Success(res, render.RenderPreview(res))
		return nil
	},
}

var exportInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Start an export session",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		filters, err := filterPayload(cmd)
		if err != nil {
			return err
		}
		res, err := a.pipeline.InitExport(cmd.Context(), a.operator, filters, exportOptionsPayload(cmd))
		if err != nil {
			return pipelineErr(err)
		}
		w.Success(res, fmt.Sprintf("Export %s started: %d products in batches of %d", res.Token, res.Total, res.BatchSize))
		return nil
	},
}

var exportBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Write one batch of an export",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		token, _ := cmd.Flags().GetString("token")
		page, _ := cmd.Flags().GetInt("page")
		res, err := a.pipeline.ExportBatch(cmd.Context(), a.operator, pipeline.ExportBatchRequest{Token: token, Page: page})
		if err != nil {
			return pipelineErr(err)
		}
		w.Warnings(res.Errors)
		msg := fmt.Sprintf("Exported %d/%d (%d%%)", res.ProcessedCount, res.Total, res.Percentage)
		if res.NextPage != nil {
			msg += fmt.Sprintf(", next page %d", *res.NextPage)
		}
		w.Success(res, msg)
		return nil
	},
}

var exportFinishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Package an export into its archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		token, _ := cmd.Flags().GetString("token")
		res, err := a.pipeline.FinishExport(cmd.Context(), a.operator, token)
		if err != nil {
			return pipelineErr(err)
		}
		w.Success(res, render.RenderExportFinish(res))
		return nil
	},
}

var exportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Export matching products in one go",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		filters, err := filterPayload(cmd)
		if err != nil {
			return err
		}
		started, err := a.pipeline.InitExport(ctx, a.operator, filters, exportOptionsPayload(cmd))
		if err != nil {
			return pipelineErr(err)
		}
		a.log.Info("export started", zap.String("token", started.Token), zap.Int("total", started.Total))

		progress := w.Progress("Exporting")
		var skipped []string
		for page := 1; ; page++ {
			res, err := a.pipeline.ExportBatch(ctx, a.operator, pipeline.ExportBatchRequest{Token: started.Token, Page: page})
			if err != nil {
				progress.Done()
				w.Hint("Resume with: porter export batch --token %s --page %d", started.Token, page)
				return pipelineErr(err)
			}
			skipped = append(skipped, res.Errors...)
			progress.Update(res.ProcessedCount, res.Total)
			if res.Done {
				break
			}
		}
		progress.Done()
		w.Warnings(skipped)

		res, err := a.pipeline.FinishExport(ctx, a.operator, started.Token)
		if err != nil {
			w.Hint("Retry packaging with: porter export finish --token %s", started.Token)
			return pipelineErr(err)
		}
		w.Success(res, render.RenderExportFinish(res))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{exportInitCmd, exportRunCmd} {
		addFilterFlags(c)
		c.Flags().Bool("no-images", false, "Leave images out of the archive")
		c.Flags().Bool("no-variations", false, "Leave variations out")
		c.Flags().Bool("no-attributes", false, "Leave attributes out")
		c.Flags().Bool("no-meta", false, "Leave custom metadata out")
	}
	addFilterFlags(exportPreviewCmd)

	exportBatchCmd.Flags().String("token", "", "Export session token")
	exportBatchCmd.Flags().Int("page", 1, "Page to write, starting at 1")
	exportFinishCmd.Flags().String("token", "", "Export session token")

	exportCmd.AddCommand(exportPreviewCmd, exportInitCmd, exportBatchCmd, exportFinishCmd, exportRunCmd)
	rootCmd.AddCommand(exportCmd)
}
