package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/output"
	"github.com/ALT-F4-LLC/porter/internal/render"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the local catalog",
}

// resolveProduct accepts "42", "#42" or a SKU.
func resolveProduct(a *app, ref string) (*model.Product, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(strings.TrimPrefix(ref, "#"), 10, 64); err == nil {
		p, err := db.GetProduct(a.conn, id)
		if errors.Is(err, db.ErrNotFound) {
			return nil, cmdErr(fmt.Errorf("product %s not found", render.FormatID(id)), output.ErrNotFound)
		}
		return p, err
	}
	id, err := db.GetProductIDBySKU(a.conn, ref)
	if errors.Is(err, db.ErrNotFound) {
		return nil, cmdErr(fmt.Errorf("no product with SKU %q", ref), output.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return db.GetProduct(a.conn, id)
}

type listResult struct {
	Products []*model.Product `json:"products"`
	Total    int              `json:"total"`
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		treeMode, _ := cmd.Flags().GetBool("tree")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")

		products, total, err := db.ListProducts(a.conn, db.ListOptions{
			RootsOnly: !treeMode,
			Search:    search,
			Limit:     limit,
		})
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		msg := render.RenderTable(products, treeMode)
		if len(products) < total {
			msg += fmt.Sprintf("\nShowing %d of %d", len(products), total)
		}
		w.Success(listResult{Products: products, Total: total}, msg)
		return nil
	},
}

type showResult struct {
	Product    *model.Product      `json:"product"`
	Terms      map[string][]string `json:"terms"`
	Variations []*model.Product    `json:"variations"`
	Activity   []model.Activity    `json:"activity"`
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <id|sku>",
	Short: "Show a product with its terms, variations and activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		p, err := resolveProduct(a, args[0])
		if err != nil {
			return err
		}

		terms := make(map[string][]string)
		for tax, ids := range p.TermIDs {
			for _, id := range ids {
				t, err := db.GetTerm(a.conn, id)
				if err != nil {
					continue
				}
				terms[tax] = append(terms[tax], t.Name)
			}
		}
		if p.ShippingClassID > 0 {
			if t, err := db.GetTerm(a.conn, p.ShippingClassID); err == nil {
				terms[model.TaxonomyShippingClass] = []string{t.Name}
			}
		}

		variations, _, err := db.ListProducts(a.conn, db.ListOptions{ParentID: &p.ID})
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		limit, _ := cmd.Flags().GetInt("activity")
		activity, err := db.GetActivity(a.conn, p.ID, limit)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		res := showResult{Product: p, Terms: terms, Variations: variations, Activity: activity}
		w.Success(res, render.RenderDetail(render.Detail{
			Product:    p,
			Terms:      terms,
			Variations: variations,
			Activity:   activity,
		}))
		return nil
	},
}

var catalogDeleteCmd = &cobra.Command{
	Use:   "delete <id|sku>",
	Short: "Delete a product and its variations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		if !a.cfg.CanManageCatalog(a.operator) {
			return cmdErr(model.ErrPermissionDenied, output.ErrPermission)
		}

		p, err := resolveProduct(a, args[0])
		if err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		jsonMode, _ := cmd.Flags().GetBool("json")
		if !force {
			if jsonMode {
				return cmdErr(fmt.Errorf("refusing to delete without --force in JSON mode"), output.ErrValidation)
			}
			children, err := db.GetChildIDs(a.conn, p.ID)
			if err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
			title := fmt.Sprintf("Delete %s %q?", render.FormatID(p.ID), p.Name)
			if len(children) > 0 {
				title = fmt.Sprintf("Delete %s %q and its %d variation(s)?", render.FormatID(p.ID), p.Name, len(children))
			}
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().Title(title).Affirmative("Delete").Negative("Cancel").Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					w.Info("Cancelled.")
					return nil
				}
				return cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
			}
			if !confirmed {
				w.Info("Cancelled.")
				return nil
			}
		}

		if err := db.DeleteProduct(a.conn, p.ID); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		a.log.Info("product deleted", zap.Int64("id", p.ID), zap.String("sku", p.SKU), zap.String("operator", a.operator))
		w.Success(struct {
			ID int64 `json:"id"`
		}{ID: p.ID}, fmt.Sprintf("Deleted %s %s", render.FormatID(p.ID), p.Name))
		return nil
	},
}

func init() {
	catalogListCmd.Flags().Bool("tree", false, "Show variations under their parents")
	catalogListCmd.Flags().StringP("search", "s", "", "Match name or SKU")
	catalogListCmd.Flags().IntP("limit", "n", 50, "Maximum products to list (0 for all)")
	catalogShowCmd.Flags().Int("activity", 10, "Activity entries to show")
	catalogDeleteCmd.Flags().BoolP("force", "f", false, "Delete without confirmation")

	catalogCmd.AddCommand(catalogListCmd, catalogShowCmd, catalogDeleteCmd)
	rootCmd.AddCommand(catalogCmd)
}
