package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/output"
	"github.com/ALT-F4-LLC/porter/internal/pipeline"
	"github.com/ALT-F4-LLC/porter/internal/render"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a catalog export",
}

func addImportOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("update-existing", false, "Update products whose SKU or id already exists")
	cmd.Flags().Bool("skip-images", false, "Do not import images")
	cmd.Flags().Bool("preserve-ids", false, "Keep source product ids when they are free")
	cmd.Flags().Bool("no-dedupe", false, "Store every image even when identical content exists")
	cmd.Flags().Int("batch-size", model.DefaultImportBatchSize, "Records per batch (max 100)")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask before updating existing products")
}

// needsUpdateConfirm reports whether an import that may overwrite existing
// products should ask first. JSON callers opted in with the flag already.
func needsUpdateConfirm(cmd *cobra.Command, page int) bool {
	update, _ := cmd.Flags().GetBool("update-existing")
	yes, _ := cmd.Flags().GetBool("yes")
	jsonMode, _ := cmd.Flags().GetBool("json")
	return update && !yes && !jsonMode && page == 1
}

// confirmUpdate asks before an update-existing import starts. It returns
// false when the operator declines.
func confirmUpdate(cmd *cobra.Command, page int) (bool, error) {
	if !needsUpdateConfirm(cmd, page) {
		return true, nil
	}
	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Update products that already exist in this catalog?").
			Description("Matching SKUs are overwritten with the imported values.").
			Affirmative("Update").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
	}
	return confirmed, nil
}

func importOptionsPayload(cmd *cobra.Command) map[string]any {
	update, _ := cmd.Flags().GetBool("update-existing")
	skip, _ := cmd.Flags().GetBool("skip-images")
	preserve, _ := cmd.Flags().GetBool("preserve-ids")
	noDedupe, _ := cmd.Flags().GetBool("no-dedupe")
	return map[string]any{
		"update_existing": update,
		"skip_images":     skip,
		"preserve_ids":    preserve,
		"dedupe_images":   !noDedupe,
	}
}

var importAnalyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Describe an import file without importing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		res, err := a.pipeline.AnalyzeImport(cmd.Context(), a.operator, args[0])
		if err != nil {
			return pipelineErr(err)
		}
		w.Success(res, render.RenderAnalysis(res))
		return nil
	},
}

var importInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Stage a .json or .zip file and start an import session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		res, err := a.pipeline.InitImport(cmd.Context(), a.operator, args[0])
		if err != nil {
			return pipelineErr(err)
		}
		w.Success(res, fmt.Sprintf("Import %s staged: %d records", res.Token, res.Total))
		return nil
	},
}

var importBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Import one batch of records",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		token, _ := cmd.Flags().GetString("token")
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("batch-size")
		ok, err := confirmUpdate(cmd, page)
		if err != nil {
			return err
		}
		if !ok {
			w.Info("Cancelled.")
			return nil
		}
		res, err := a.pipeline.ImportBatch(cmd.Context(), a.operator, pipeline.ImportBatchRequest{
			Token:     token,
			Page:      page,
			BatchSize: size,
			Options:   importOptionsPayload(cmd),
		})
		if err != nil {
			return pipelineErr(err)
		}
		msg := fmt.Sprintf("Imported %d/%d (%d%%)", res.Processed, res.Total, res.Percentage)
		if res.IsComplete {
			msg += "\n\n" + render.RenderImportSummary(res.Summary)
		}
		w.Success(res, msg)
		return nil
	},
}

var importRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Import a file in one go",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)
		ctx := cmd.Context()

		ok, err := confirmUpdate(cmd, 1)
		if err != nil {
			return err
		}
		if !ok {
			w.Info("Cancelled.")
			return nil
		}

		staged, err := a.pipeline.InitImport(ctx, a.operator, args[0])
		if err != nil {
			return pipelineErr(err)
		}
		a.log.Info("import started", zap.String("token", staged.Token), zap.Int("total", staged.Total))
		if staged.IsArchive {
			w.Info("Archive export %s from %s", staged.Version, staged.ExportDate)
		}

		progress := w.Progress("Importing")

		size, _ := cmd.Flags().GetInt("batch-size")
		opts := importOptionsPayload(cmd)
		for page := 1; ; page++ {
			res, err := a.pipeline.ImportBatch(ctx, a.operator, pipeline.ImportBatchRequest{
				Token:     staged.Token,
				Page:      page,
				BatchSize: size,
				Options:   opts,
			})
			if err != nil {
				progress.Done()
				w.Hint("Resume with: porter import batch --token %s --page %d", staged.Token, page)
				return pipelineErr(err)
			}
			progress.Update(res.Processed, res.Total)
			if res.IsComplete {
				progress.Done()
				w.Success(res.Summary, render.RenderImportSummary(res.Summary))
				return nil
			}
		}
	},
}

func init() {
	addImportOptionFlags(importBatchCmd)
	addImportOptionFlags(importRunCmd)
	importBatchCmd.Flags().String("token", "", "Import session token")
	importBatchCmd.Flags().Int("page", 1, "Page to import, starting at 1")

	importCmd.AddCommand(importAnalyzeCmd, importInitCmd, importBatchCmd, importRunCmd)
	rootCmd.AddCommand(importCmd)
}
