package main

import (
	"errors"
	"reflect"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/output"
)

func newFlagCmd(t *testing.T, setup func(*cobra.Command), args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	setup(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd
}

func TestFilterPayloadFromFlags(t *testing.T) {
	cmd := newFlagCmd(t, addFilterFlags,
		"--status", "publish,draft",
		"--category", "mugs",
		"--from", "2024-01-01",
		"--filters", `{"product_tags":"sale","product_status":"private"}`,
	)

	got, err := filterPayload(cmd)
	if err != nil {
		t.Fatalf("filterPayload: %v", err)
	}
	want := map[string]any{
		"product_status":     []string{"publish", "draft"},
		"product_categories": []string{"mugs"},
		"product_tags":       "sale",
		"date_from":          "2024-01-01",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("payload = %#v, want %#v", got, want)
	}
}

func TestFilterPayloadRejectsBadJSON(t *testing.T) {
	cmd := newFlagCmd(t, addFilterFlags, "--filters", "{nope")
	_, err := filterPayload(cmd)
	var ce *CmdError
	if !errors.As(err, &ce) || ce.Code != output.ErrValidation {
		t.Errorf("err = %v, want validation CmdError", err)
	}
}

func TestImportOptionsPayload(t *testing.T) {
	cmd := newFlagCmd(t, addImportOptionFlags, "--update-existing", "--no-dedupe")
	opts := model.ImportOptionsFrom(importOptionsPayload(cmd))
	want := model.ImportOptions{UpdateExisting: true, DedupeImages: false}
	if opts != want {
		t.Errorf("options = %+v, want %+v", opts, want)
	}
}

func TestUpdateExistingAsksFirst(t *testing.T) {
	withJSON := func(cmd *cobra.Command) {
		addImportOptionFlags(cmd)
		cmd.Flags().Bool("json", false, "")
	}
	tests := []struct {
		name string
		args []string
		page int
		want bool
	}{
		{"update existing", []string{"--update-existing"}, 1, true},
		{"create only", nil, 1, false},
		{"confirmed by flag", []string{"--update-existing", "-y"}, 1, false},
		{"json mode", []string{"--update-existing", "--json"}, 1, false},
		{"later page", []string{"--update-existing"}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFlagCmd(t, withJSON, tt.args...)
			if got := needsUpdateConfirm(cmd, tt.page); got != tt.want {
				t.Errorf("needsUpdateConfirm = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPipelineErrCodes(t *testing.T) {
	tests := []struct {
		err  error
		want output.ErrorCode
	}{
		{model.E(model.KindPermission, "export init", model.ErrPermissionDenied), output.ErrPermission},
		{model.E(model.KindSession, "import", model.ErrSessionNotFound), output.ErrNotFound},
		{model.Ef(model.KindValidation, "import init", "unsupported file"), output.ErrValidation},
		{errors.New("disk full"), output.ErrGeneral},
	}
	for _, tt := range tests {
		if got := pipelineErr(tt.err).Code; got != tt.want {
			t.Errorf("pipelineErr(%v).Code = %q, want %q", tt.err, got, tt.want)
		}
	}
	if code := output.ExitCodeForError(output.ErrPermission); code != 5 {
		t.Errorf("permission exit code = %d, want 5", code)
	}
}
