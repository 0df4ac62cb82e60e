// Package neo4j exports a crawl's link graph into a Neo4j database so it can
// be explored with Cypher.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-site-crawler/internal/linkgraph"
)

//go:generate mockgen -source=exporter.go -destination=../../mocks/neo4j_mock.go -package=mocks

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

const (
	pageQuery = "UNWIND $rows AS row " +
		"MERGE (p:Page {job_id: $job_id, url: row.url}) " +
		"SET p.status = row.status, p.depth = row.depth, p.in_degree = row.in_degree, p.title = row.title"
	linkQuery = "UNWIND $rows AS row " +
		"MATCH (a:Page {job_id: $job_id, url: row.from}) " +
		"MATCH (b:Page {job_id: $job_id, url: row.to}) " +
		"MERGE (a)-[:LINKS_TO]->(b)"
	defaultBatch = 500
)

// Exporter writes graphs through a driver.
type Exporter struct {
	driver   DriverSessioner
	database string
	batch    int
	logger   *zap.Logger
}

// Config selects the target database and batch size.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
	Batch    int
}

// Dial connects to Neo4j and verifies connectivity.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Exporter, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return New(&driverAdapter{driver: driver}, cfg, logger), nil
}

// New wraps an existing driver.
func New(driver DriverSessioner, cfg Config, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultBatch
	}
	return &Exporter{driver: driver, database: cfg.Database, batch: cfg.Batch, logger: logger.Named("neo4j")}
}

// Export upserts every page as a node and every link as a LINKS_TO edge,
// scoped by job ID.
func (e *Exporter) Export(ctx context.Context, jobID string, g *linkgraph.Graph) error {
	var pages []map[string]any
	for _, p := range g.Pages() {
		pages = append(pages, map[string]any{
			"url":       p.URL,
			"status":    p.StatusCode,
			"depth":     g.ClickDepth(p.URL),
			"in_degree": g.InDegree(p.URL),
			"title":     p.Title,
		})
	}
	var links []map[string]any
	g.Edges(func(from, to string) {
		links = append(links, map[string]any{"from": from, "to": to})
	})

	if err := e.write(ctx, jobID, pageQuery, pages); err != nil {
		return fmt.Errorf("export pages: %w", err)
	}
	if err := e.write(ctx, jobID, linkQuery, links); err != nil {
		return fmt.Errorf("export links: %w", err)
	}
	e.logger.Info("link graph exported", zap.String("job_id", jobID), zap.Int("pages", len(pages)), zap.Int("links", len(links)))
	return nil
}

// Close releases the driver.
func (e *Exporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

func (e *Exporter) write(ctx context.Context, jobID, query string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: e.database})
	defer func() {
		if err := session.Close(ctx); err != nil {
			e.logger.Warn("neo4j session close failed", zap.Error(err))
		}
	}()
	for start := 0; start < len(rows); start += e.batch {
		chunk := rows[start:min(start+e.batch, len(rows))]
		params := map[string]any{"job_id": jobID, "rows": chunk}
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, query, params)
			return nil, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type driverAdapter struct {
	driver neo4j.DriverWithContext
}

func (d *driverAdapter) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *driverAdapter) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}
