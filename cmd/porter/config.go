package main

import (
	"fmt"
	"os"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/porter/internal/config"
	"github.com/ALT-F4-LLC/porter/internal/db"
	"github.com/ALT-F4-LLC/porter/internal/output"
	"github.com/ALT-F4-LLC/porter/internal/render"
)

type configInfo struct {
	Dir            string   `json:"dir"`
	DBPath         string   `json:"db_path"`
	DBSizeBytes    int64    `json:"db_size_bytes"`
	SchemaVersion  int      `json:"schema_version"`
	Products       int      `json:"products"`
	Media          int      `json:"media"`
	Env            string   `json:"env"`
	Operator       string   `json:"operator"`
	Operators      []string `json:"operators,omitempty"`
	SessionBackend string   `json:"session_backend"`
	SessionTTL     string   `json:"session_ttl"`
	MediaBackend   string   `json:"media_backend"`
	SiteURL        string   `json:"site_url,omitempty"`
	PathEnvSet     bool     `json:"porter_path_set"`
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Display porter configuration",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		info := newConfigInfo(cfg)

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}
		if !exists {
			w.Warn("No porter workspace found. Run 'porter init' to create one.")
			w.Success(info, formatConfigHuman(info, true))
			return nil
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("opening database: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		if info.SchemaVersion, err = db.SchemaVersion(conn); err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}
		if info.Products, err = db.CountProducts(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if info.Media, err = db.CountMedia(conn); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		stat, err := os.Stat(cfg.DBPath)
		if err != nil {
			return cmdErr(fmt.Errorf("reading database file: %w", err), output.ErrGeneral)
		}
		info.DBSizeBytes = stat.Size()

		w.Success(info, formatConfigHuman(info, false))
		return nil
	},
}

func newConfigInfo(cfg *config.Config) configInfo {
	return configInfo{
		Dir:            cfg.Dir,
		DBPath:         cfg.DBPath,
		Env:            cfg.Env,
		Operator:       cfg.OperatorName(),
		Operators:      cfg.Operators,
		SessionBackend: cfg.SessionBackend,
		SessionTTL:     cfg.SessionTTL.String(),
		MediaBackend:   cfg.MediaBackend,
		SiteURL:        cfg.SiteURL,
		PathEnvSet:     cfg.EnvVarSet,
	}
}

func orNotSet(val string) string {
	if val == "" {
		return "(not set)"
	}
	return val
}

func configRows(info configInfo, notFound bool) [][2]string {
	dbPath := info.DBPath
	if notFound {
		dbPath += " (not found)"
	}
	rows := [][2]string{{"Database path:", dbPath}}
	if !notFound {
		rows = append(rows,
			[2]string{"Database size:", humanize.Bytes(uint64(info.DBSizeBytes))},
			[2]string{"Schema version:", fmt.Sprint(info.SchemaVersion)},
			[2]string{"Products:", humanize.Comma(int64(info.Products))},
			[2]string{"Media:", humanize.Comma(int64(info.Media))},
		)
	}
	operators := "(anyone)"
	if len(info.Operators) > 0 {
		operators = strings.Join(info.Operators, ", ")
	}
	rows = append(rows,
		[2]string{"Environment:", info.Env},
		[2]string{"Operator:", info.Operator},
		[2]string{"Allowed operators:", operators},
		[2]string{"Sessions:", fmt.Sprintf("%s (ttl %s)", info.SessionBackend, info.SessionTTL)},
		[2]string{"Media storage:", info.MediaBackend},
		[2]string{"Site URL:", orNotSet(info.SiteURL)},
	)
	return rows
}

func formatConfigHuman(info configInfo, notFound bool) string {
	rows := configRows(info, notFound)
	if !render.ColorsEnabled() {
		var b strings.Builder
		for _, r := range rows {
			fmt.Fprintf(&b, "%-19s %s\n", r[0], r[1])
		}
		return strings.TrimRight(b.String(), "\n")
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	indicator := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
	if notFound {
		indicator = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	}

	lines := []string{headerStyle.Render("Porter Configuration"), ""}
	for i, r := range rows {
		val := valStyle.Render(r[1])
		if i == 0 {
			val = indicator + " " + val
		}
		lines = append(lines, fmt.Sprintf("  %s %s", keyStyle.Render(fmt.Sprintf("%-19s", r[0])), val))
	}
	return strings.Join(lines, "\n")
}

func init() {
	rootCmd.AddCommand(configCmd)
}
