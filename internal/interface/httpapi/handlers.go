package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jinford/rag-studio/internal/core/chat"
	"github.com/jinford/rag-studio/internal/core/collection"
	"github.com/jinford/rag-studio/internal/core/ingestion"
	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

// maxUploadSize はアップロードファイルの上限サイズ
const maxUploadSize = 32 << 20

// Ingester は取り込みサービスのインターフェース
type Ingester interface {
	Ingest(ctx context.Context, in ingestion.SourceInput) (*ingestion.IngestResult, error)
}

// Chatter は質問応答サービスのインターフェース
type Chatter interface {
	Ask(ctx context.Context, query, collectionName string) (*chat.Result, error)
}

// CollectionAdmin はコレクション管理サービスのインターフェース
type CollectionAdmin interface {
	Create(ctx context.Context, name string, size int, distance vectorstore.Distance) (*collection.CreateResult, error)
	Clear(ctx context.Context, name string) error
	Drop(ctx context.Context, name, confirm string) error
	ListSources(ctx context.Context, name string) (*collection.SourceReport, error)
}

// Handler は各エンドポイントの実装
type Handler struct {
	ingester    Ingester
	chatter     Chatter
	collections CollectionAdmin
}

// NewHandler は新しいHandlerを作成する
func NewHandler(ingester Ingester, chatter Chatter, collections CollectionAdmin) *Handler {
	return &Handler{
		ingester:    ingester,
		chatter:     chatter,
		collections: collections,
	}
}

// Health は死活確認に応答する
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Index はソースの取り込みを受け付ける
// multipart/form-data: sourceType, collectionName, sourceName?, text|file|url
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	in := ingestion.SourceInput{
		Kind:           ingestion.SourceKind(strings.ToLower(r.FormValue("sourceType"))),
		CollectionName: r.FormValue("collectionName"),
		SourceName:     strings.TrimSpace(r.FormValue("sourceName")),
		Text:           r.FormValue("text"),
		URL:            r.FormValue("url"),
	}

	if r.FormValue("sourceType") == "" {
		writeError(w, http.StatusBadRequest, "sourceType is required")
		return
	}

	if in.Kind == ingestion.SourceKindFile {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			in.File = &ingestion.FileInput{
				Name:        header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Reader:      file,
			}
		}
	}

	result, err := h.ingester.Ingest(r.Context(), in)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("Indexing of %s done.", result.Identity),
		"inserted":       result.Inserted,
		"collectionName": result.CollectionName,
		"identity":       result.Identity,
	})
}

type chatRequest struct {
	UserQuery      string `json:"userQuery"`
	CollectionName string `json:"collectionName"`
}

// Chat は接地付き質問応答を実行する
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserQuery == "" {
		writeError(w, http.StatusBadRequest, "userQuery is required")
		return
	}
	if req.CollectionName == "" {
		writeError(w, http.StatusBadRequest, "collectionName is required")
		return
	}

	result, err := h.chatter.Ask(r.Context(), req.UserQuery, req.CollectionName)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Sources はコレクション全体の出典集計を返す
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("collectionName")
	if name == "" {
		writeError(w, http.StatusBadRequest, "collectionName is required")
		return
	}

	report, err := h.collections.ListSources(r.Context(), name)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type createCollectionRequest struct {
	CollectionName string `json:"collectionName"`
	Size           int    `json:"size"`
	Distance       string `json:"distance"`
}

// CreateCollection はコレクションを冪等に作成する
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CollectionName == "" {
		writeError(w, http.StatusBadRequest, "collectionName is required")
		return
	}

	result, err := h.collections.Create(r.Context(), req.CollectionName, req.Size, vectorstore.Distance(req.Distance))
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type collectionRequest struct {
	CollectionName string `json:"collectionName"`
	Confirm        string `json:"confirm"`
}

// ClearIndex はコレクションの全ポイントを削除する
func (h *Handler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CollectionName == "" {
		writeError(w, http.StatusBadRequest, "collectionName is required")
		return
	}

	if err := h.collections.Clear(r.Context(), req.CollectionName); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("All points deleted from %q.", req.CollectionName),
	})
}

// DropCollection はコレクション自体を削除する（確認トークン必須）
func (h *Handler) DropCollection(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CollectionName == "" {
		writeError(w, http.StatusBadRequest, "collectionName is required")
		return
	}

	if err := h.collections.Drop(r.Context(), req.CollectionName, req.Confirm); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Collection %q deleted.", req.CollectionName),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError はアプリケーションエラーをHTTPステータスへ写像する
// 入力起因のエラーは400、外部コラボレーターの失敗は502、それ以外は500
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingestion.ErrMissingField),
		errors.Is(err, ingestion.ErrUnsupportedSourceKind),
		errors.Is(err, ingestion.ErrEmptyDocument),
		errors.Is(err, collection.ErrConfirmationRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vectorstore.ErrStoreUnavailable),
		errors.Is(err, vectorstore.ErrDimensionMismatch),
		errors.Is(err, ingestion.ErrLoadFailure),
		errors.Is(err, chat.ErrCompletionFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
