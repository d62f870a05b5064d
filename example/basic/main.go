package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/hmeierhoff/clearsearch"
	"github.com/hmeierhoff/clearsearch/embedding"
	"github.com/hmeierhoff/clearsearch/helper"
	"github.com/hmeierhoff/clearsearch/model"
)

type samplePassage struct {
	content              string
	source               string
	level                model.SecurityLevel
	departmentID         string
	departmentRestricted bool
}

var samplePassages = []samplePassage{
	{
		content: "Our refund policy allows customers to return products within 30 days of purchase for a full refund.",
		source:  "handbook/refunds.md",
		level:   model.LevelGeneral,
	},
	{
		content: "Support escalations above tier 2 are routed to the on-call engineer through the incident channel.",
		source:  "handbook/support.md",
		level:   model.LevelGeneral,
	},
	{
		content:              "Q3 revenue grew 18% quarter over quarter, driven primarily by the enterprise segment.",
		source:               "finance/q3-review.md",
		level:                model.LevelRestricted,
		departmentID:         "finance",
		departmentRestricted: true,
	},
	{
		content: "The upcoming acquisition negotiation is confidential until the public announcement.",
		source:  "exec/ma-briefing.md",
		level:   model.LevelConfidential,
	},
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "clearsearch",
		Username: "postgres",
		Password: "postgres",
	}

	// Local sentence transformer, 384 dimensions
	embedder, err := embedding.NewLocalEmbedder("")
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer embedder.Close()

	cfg := model.DefaultConfig()
	cfg.EnableReranker = false // no rerank service in this example

	engine, err := clearsearch.NewEngine(dbConfig, cfg, embedder, nil, 384)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()

	// Ingest the sample corpus
	fmt.Println("Ingesting passages...")
	for _, p := range samplePassages {
		vector, err := embedder.Embed(ctx, p.content)
		if err != nil {
			log.Fatalf("Failed to embed passage: %v", err)
		}
		passage := &model.PassageCandidate{
			Content:              p.content,
			Source:               p.source,
			SecurityLevel:        p.level,
			DepartmentID:         p.departmentID,
			DepartmentRestricted: p.departmentRestricted,
			Metadata:             model.Metadata{},
		}
		if err := engine.Passages.InsertPassage(passage, vector); err != nil {
			log.Fatalf("Failed to insert passage: %v", err)
		}
	}

	// Register two users with different clearance
	intern := &model.UserClearance{UserID: uuid.New(), OrgLevel: model.LevelGeneral}
	analyst := &model.UserClearance{
		UserID:          uuid.New(),
		OrgLevel:        model.LevelRestricted,
		DepartmentLevel: model.LevelRestricted,
		DepartmentID:    "finance",
	}
	for _, user := range []*model.UserClearance{intern, analyst} {
		if err := engine.Clearances.UpsertUserClearance(user); err != nil {
			log.Fatalf("Failed to upsert clearance: %v", err)
		}
	}

	query := "How did revenue develop last quarter?"
	fmt.Printf("\nQuerying: %s\n", query)

	for name, user := range map[string]*model.UserClearance{"intern": intern, "finance analyst": analyst} {
		outcome, err := engine.Retrieve(ctx, query, user.UserID)
		if err != nil {
			log.Fatalf("Retrieval failed for %s: %v", name, err)
		}

		fmt.Printf("\n[%s] status=%s blocked=%d\n", name, outcome.Status, outcome.BlockedCount)
		for i, passage := range outcome.Passages {
			fmt.Printf("  %d. (%.3f) %s\n", i+1, passage.SimilarityScore, passage.Content)
		}
	}
}
