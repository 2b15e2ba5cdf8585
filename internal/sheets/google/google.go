package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	ports "koperasi/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	// TabPrefix is prepended to every tab name, e.g. "2025 ".
	TabPrefix string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
	logger        *slog.Logger

	mu    sync.Mutex
	known map[string]bool
}

var _ ports.TabWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, cfg, logger), nil
}

// NewWithOptions builds a client from explicit API options. Used against
// emulators and in tests.
func NewWithOptions(ctx context.Context, cfg Config, logger *slog.Logger, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, cfg, logger), nil
}

func newClient(svc *gsheet.Service, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		prefix:        cfg.TabPrefix,
		logger:        logger,
		known:         make(map[string]bool),
	}
}

// credentials resolves inline JSON first, then a file path, then
// GOOGLE_APPLICATION_CREDENTIALS.
func credentials(cfg Config) ([]byte, error) {
	if s := strings.TrimSpace(cfg.CredentialsJSON); s != "" {
		return []byte(s), nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) TabName(tab string) string {
	return c.prefix + tab
}

// ReplaceTab clears the tab and writes header and rows from A1.
func (c *Client) ReplaceTab(ctx context.Context, tab string, t ports.Table) error {
	name := c.TabName(tab)
	if err := c.ensureTab(ctx, name); err != nil {
		return err
	}

	rng := quote(name)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", name, err)
	}

	values := make([][]interface{}, 0, len(t.Rows)+1)
	values = append(values, toInterfaces(t.Header))
	for _, r := range t.Rows {
		values = append(values, toInterfaces(r))
	}
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	c.logger.DebugContext(ctx, "Sheet tab replaced", "tab", name, "rows", len(t.Rows))
	return nil
}

func (c *Client) ensureTab(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[name] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	if c.known[name] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", name, err)
	}
	c.known[name] = true
	c.logger.InfoContext(ctx, "Created sheet tab", "tab", name)
	return nil
}

func quote(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
