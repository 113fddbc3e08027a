// Package mcp exposes listing analysis as Model Context Protocol tools so
// agents can turn a pasted ad into a structured draft. Served over stdio by
// the CLI's mcp command.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// KnowledgeURI is the resource describing the knowledge base in effect.
const KnowledgeURI = "listing-parser://knowledge"

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Service *listing.Service
	Version string // version string for MCP server info
}

// NewServer creates a configured MCP server with the listing tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"listing-parser",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerAnalyzeTool(s, cfg.Service)
	registerKnowledgeTool(s, cfg.Service)
	registerKnowledgeResource(s, cfg.Service)
	return s
}

func registerAnalyzeTool(s *server.MCPServer, svc *listing.Service) {
	tool := mcp.NewTool("analyze_listing",
		mcp.WithDescription("Extract a structured listing draft (title, price, category, condition, vehicle details, contact phone, highlights, missing fields) from free-text classified-ad copy, mostly Hebrew. Pass the ad as text, or as html scraped from a listing page."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("text",
			mcp.Description("The ad text as the seller wrote it"),
		),
		mcp.WithString("html",
			mcp.Description("Listing description markup; converted to text before analysis"),
		),
		mcp.WithString("title",
			mcp.Description("Listing title, placed on the first line"),
		),
		mcp.WithBoolean("use_knowledge_base",
			mcp.Description("Correct makes, models and categories against the knowledge base (default true)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		useKB := req.GetBool("use_knowledge_base", true)
		resp, err := svc.Analyze(ctx, magicparse.AnalyzeRequest{
			Text:             req.GetString("text", ""),
			HTML:             req.GetString("html", ""),
			Title:            req.GetString("title", ""),
			UseKnowledgeBase: &useKB,
		})
		if errors.Is(err, listing.ErrEmptyRequest) {
			return mcp.NewToolResultError("text or html is required"), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
		}

		data, err := json.MarshalIndent(resp.Result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerKnowledgeTool(s *server.MCPServer, svc *listing.Service) {
	tool := mcp.NewTool("knowledge_stats",
		mcp.WithDescription("Report the knowledge base used for corrections: version, source and how many makes, models and category synonyms it holds."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := json.MarshalIndent(svc.KnowledgeInfo(), "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding stats: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerKnowledgeResource(s *server.MCPServer, svc *listing.Service) {
	resource := mcp.NewResource(
		KnowledgeURI,
		"Knowledge Base",
		mcp.WithResourceDescription("Version and size of the knowledge base used for make, model and category corrections."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(svc.KnowledgeInfo(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding knowledge info: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
