// Package pipeline is the call surface of the export and import pipeline.
// Every operation checks the caller holds the catalog management capability
// before anything else, then validates its request and delegates to the
// exporter or importer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/archive"
	"github.com/ALT-F4-LLC/porter/internal/exporter"
	"github.com/ALT-F4-LLC/porter/internal/importer"
	"github.com/ALT-F4-LLC/porter/internal/model"
)

// Capability is the permission every pipeline operation requires.
const Capability = "manage_catalog"

// Authorizer decides whether an operator holds the catalog management
// capability.
type Authorizer interface {
	CanManageCatalog(operator string) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(operator string) bool

func (f AuthorizerFunc) CanManageCatalog(operator string) bool { return f(operator) }

// Pipeline exposes the export and import operations.
type Pipeline struct {
	exporter *exporter.Exporter
	importer *importer.Importer
	auth     Authorizer
	validate *validator.Validate
	log      *zap.Logger
}

// New returns a Pipeline. A nil logger discards log output.
func New(exp *exporter.Exporter, imp *importer.Importer, auth Authorizer, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		exporter: exp,
		importer: imp,
		auth:     auth,
		validate: validator.New(),
		log:      log,
	}
}

// ExportBatchRequest names one page of an export session.
type ExportBatchRequest struct {
	Token string `validate:"required"`
	Page  int    `validate:"gte=1"`
}

// ImportBatchRequest names one page of an import session. Options is the
// loosely typed option payload; see model.ImportOptionsFrom.
type ImportBatchRequest struct {
	Token     string `validate:"required"`
	Page      int    `validate:"gte=1"`
	BatchSize int    `validate:"gte=0,lte=100"`
	Options   map[string]any
}

type pathRequest struct {
	Path string `validate:"required"`
}

type tokenRequest struct {
	Token string `validate:"required"`
}

func (p *Pipeline) authorize(op, operator string) error {
	if p.auth == nil || !p.auth.CanManageCatalog(operator) {
		p.log.Warn("operation refused", zap.String("op", op), zap.String("operator", operator), zap.String("capability", Capability))
		return model.E(model.KindPermission, op, model.ErrPermissionDenied)
	}
	return nil
}

func (p *Pipeline) check(op string, req any) error {
	err := p.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return model.Ef(model.KindValidation, op, "%s", strings.Join(msgs, "; "))
	}
	return model.E(model.KindValidation, op, err)
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
}

// InitExport opens an export session for the products filters match.
func (p *Pipeline) InitExport(ctx context.Context, operator string, filters, options map[string]any) (*exporter.InitResult, error) {
	if err := p.authorize("export init", operator); err != nil {
		return nil, err
	}
	return p.exporter.Init(ctx, operator, filters, model.ExportOptionsFrom(options))
}

// ExportBatch appends one page of records to the operator's export.
func (p *Pipeline) ExportBatch(ctx context.Context, operator string, req ExportBatchRequest) (*exporter.BatchResult, error) {
	const op = "export batch"
	if err := p.authorize(op, operator); err != nil {
		return nil, err
	}
	if err := p.check(op, &req); err != nil {
		return nil, err
	}
	return p.exporter.Batch(ctx, operator, req.Token, req.Page)
}

// FinishExport packages the operator's export into an archive.
func (p *Pipeline) FinishExport(ctx context.Context, operator, token string) (*exporter.FinishResult, error) {
	const op = "export finish"
	if err := p.authorize(op, operator); err != nil {
		return nil, err
	}
	if err := p.check(op, &tokenRequest{Token: token}); err != nil {
		return nil, err
	}
	return p.exporter.Finish(ctx, operator, token)
}

// PreviewExport counts the products filters match and samples a few.
func (p *Pipeline) PreviewExport(ctx context.Context, operator string, filters map[string]any) (*exporter.PreviewResult, error) {
	if err := p.authorize("export preview", operator); err != nil {
		return nil, err
	}
	return p.exporter.Preview(ctx, filters)
}

// InitImport stages the upload at path and opens an import session.
func (p *Pipeline) InitImport(ctx context.Context, operator, path string) (*importer.InitResult, error) {
	const op = "import init"
	if err := p.authorize(op, operator); err != nil {
		return nil, err
	}
	if err := p.check(op, &pathRequest{Path: path}); err != nil {
		return nil, err
	}
	return p.importer.Init(ctx, operator, path)
}

// ImportBatch reconciles one page of the operator's import.
func (p *Pipeline) ImportBatch(ctx context.Context, operator string, req ImportBatchRequest) (*importer.BatchResult, error) {
	const op = "import batch"
	if err := p.authorize(op, operator); err != nil {
		return nil, err
	}
	if err := p.check(op, &req); err != nil {
		return nil, err
	}
	return p.importer.Batch(ctx, operator, req.Token, importer.BatchRequest{
		Page:      req.Page,
		BatchSize: req.BatchSize,
		Options:   model.ImportOptionsFrom(req.Options),
	})
}

// AnalyzeImport inspects an upload without importing it.
func (p *Pipeline) AnalyzeImport(ctx context.Context, operator, path string) (*archive.Analysis, error) {
	const op = "import analyze"
	if err := p.authorize(op, operator); err != nil {
		return nil, err
	}
	if err := p.check(op, &pathRequest{Path: path}); err != nil {
		return nil, err
	}
	return p.importer.Analyze(path)
}
