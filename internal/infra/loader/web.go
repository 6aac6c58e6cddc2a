package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinford/rag-studio/internal/core/ingestion"
	"golang.org/x/net/html"
)

const (
	// DefaultMaxDepth は起点URLからたどるリンクの最大深さ
	DefaultMaxDepth = 2

	// fetchTimeout はページ1件あたりの取得タイムアウト
	fetchTimeout = 15 * time.Second
)

// WebLoader は起点URLから同一ホスト内のページを幅優先で収集するクローラー
// フラグメントのみのリンク（#...）は除外する
type WebLoader struct {
	client   *http.Client
	maxDepth int
	logger   *slog.Logger
}

// NewWebLoader は新しいWebLoaderを作成する
func NewWebLoader(logger *slog.Logger) *WebLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebLoader{
		client:   &http.Client{Timeout: fetchTimeout},
		maxDepth: DefaultMaxDepth,
		logger:   logger,
	}
}

var _ ingestion.WebLoader = (*WebLoader)(nil)

type crawlTarget struct {
	url   *url.URL
	depth int
}

// Crawl は起点URLと深さmaxDepth未満のリンク先ページをDocument群として返す
// 起点ページの取得失敗はエラー、リンク先の個別失敗はログに残して読み飛ばす
func (l *WebLoader) Crawl(ctx context.Context, rawURL string) ([]ingestion.Document, error) {
	root, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", root.Scheme)
	}

	visited := map[string]bool{root.String(): true}
	queue := []crawlTarget{{url: root, depth: 0}}

	var docs []ingestion.Document
	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]

		doc, links, err := l.fetchPage(ctx, target.url)
		if err != nil {
			if target.depth == 0 {
				return nil, err
			}
			l.logger.Warn("skipping page",
				slog.String("url", target.url.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		if doc != nil {
			docs = append(docs, *doc)
		}

		if target.depth+1 >= l.maxDepth {
			continue
		}
		for _, link := range links {
			key := link.String()
			if visited[key] {
				continue
			}
			visited[key] = true
			queue = append(queue, crawlTarget{url: link, depth: target.depth + 1})
		}
	}
	return docs, nil
}

// fetchPage は1ページを取得し、本文テキストと同一ホストへのリンクを返す
// HTML以外のコンテンツはDocumentを生成せずリンクも返さない
func (l *WebLoader) fetchPage(ctx context.Context, pageURL *url.URL) (*ingestion.Document, []*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return nil, nil, nil
	}

	node, err := html.Parse(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse html: %w", err)
	}

	title := extractTitle(node)
	text := strings.TrimSpace(extractText(node))
	links := l.extractLinks(node, pageURL)

	if text == "" {
		return nil, links, nil
	}

	return &ingestion.Document{
		PageContent: text,
		Metadata: ingestion.Metadata{
			Source: pageURL.String(),
			Title:  title,
		},
	}, links, nil
}

// extractLinks はページ内のアンカーから辿るべき同一ホストのURLを集める
func (l *WebLoader) extractLinks(node *html.Node, base *url.URL) []*url.URL {
	var links []*url.URL
	for n := range node.Descendants() {
		if n.Type != html.ElementNode || n.Data != "a" {
			continue
		}
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			href := strings.TrimSpace(attr.Val)
			// ページ内アンカーは別ページではないため除外する
			if href == "" || strings.HasPrefix(href, "#") {
				continue
			}
			resolved, err := base.Parse(href)
			if err != nil {
				continue
			}
			resolved.Fragment = ""
			if resolved.Host != base.Host {
				continue
			}
			if resolved.Scheme != "http" && resolved.Scheme != "https" {
				continue
			}
			links = append(links, resolved)
		}
	}
	return links
}

// extractText はscript/styleを除いた全テキストノードを連結する
func extractText(node *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return sb.String()
}

// extractTitle は<title>要素の内容を返す
func extractTitle(node *html.Node) string {
	for n := range node.Descendants() {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	return ""
}
