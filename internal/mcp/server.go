package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codeancestry/codeancestry/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes tools for external AI agents to query repository history.
type Server struct {
	ragService  *service.RAGService
	repoService *service.RepoService
	port        string
}

// NewServer creates a new MCP server.
func NewServer(ragService *service.RAGService, repoService *service.RepoService, port string) *Server {
	return &Server{
		ragService:  ragService,
		repoService: repoService,
		port:        port,
	}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Start begins the MCP server on the configured port.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)

	slog.Info("MCP server starting", "port", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, -32700, "parse error")
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "codeancestry",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, -32601, "method not found")
		return
	}

	if err != nil {
		writeError(w, req.ID, -32603, err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial endpoint message
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	w.(http.Flusher).Flush()

	// Keep connection alive
	<-r.Context().Done()
}

func (s *Server) listTools() map[string]interface{} {
	tools := []Tool{
		{
			Name:        "ask_question",
			Description: "Ask a natural-language question about a repository's commit history",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"repo_id": {"type": "string", "description": "Repository ID"},
					"question": {"type": "string", "description": "Question about the commit history"},
					"top_k": {"type": "integer", "description": "How many commits to retrieve (1-50)"}
				},
				"required": ["repo_id", "question"]
			}`),
		},
		{
			Name:        "embedding_status",
			Description: "Report how much of a repository's commit history is searchable",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"repo_id": {"type": "string", "description": "Repository ID"}
				},
				"required": ["repo_id"]
			}`),
		},
		{
			Name:        "list_repositories",
			Description: "List registered repositories",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
		},
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	switch req.Name {
	case "ask_question":
		var args struct {
			RepoID   string `json:"repo_id"`
			Question string `json:"question"`
			TopK     int    `json:"top_k"`
		}
		json.Unmarshal(req.Arguments, &args)

		answer, err := s.ragService.AskQuestion(ctx, args.RepoID, args.Question, args.TopK, "")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": answer.Text},
			},
			"sources": answer.Sources,
		}, nil

	case "embedding_status":
		var args struct {
			RepoID string `json:"repo_id"`
		}
		json.Unmarshal(req.Arguments, &args)

		repo, err := s.repoService.Get(ctx, args.RepoID)
		if err != nil {
			return nil, err
		}
		status, err := s.ragService.EmbeddingStatus(ctx, repo)
		if err != nil {
			return nil, err
		}
		text, _ := json.Marshal(status)
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": string(text)},
			},
		}, nil

	case "list_repositories":
		repos, err := s.repoService.List(ctx)
		if err != nil {
			return nil, err
		}
		text, _ := json.Marshal(repos)
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": string(text)},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Name)
	}
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
