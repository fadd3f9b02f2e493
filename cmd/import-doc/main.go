// Command import-doc populates the vector index with EV charging
// documentation, either from local files (.md/.txt/.html/.pdf) or by
// crawling a documentation site.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	pdf "github.com/dslipak/pdf"
	"golang.org/x/net/html"

	"github.com/s3ev/evcharge-rag/internal/config"
	"github.com/s3ev/evcharge-rag/internal/llm"
	"github.com/s3ev/evcharge-rag/internal/rag"
	"github.com/s3ev/evcharge-rag/internal/vectorindex/pgvector"
	"github.com/s3ev/evcharge-rag/internal/vectorindex/qdrant"
)

func main() {
	fromFiles := flag.Bool("from-files", false, "import from local files (.md/.txt/.html/.pdf)")
	pathFlag := flag.String("path", "", "base directory for local files")
	fromURL := flag.Bool("from-url", false, "import via HTTP crawl")
	baseURLFlag := flag.String("base-url", "", "base URL for crawl (ex: https://docs.s3ev.com)")
	maxPagesFlag := flag.Int("max-pages", 50, "page limit for HTTP crawl")
	flag.Parse()

	if !*fromFiles && !*fromURL {
		log.Fatal("use at least one mode: --from-files or --from-url")
	}

	ctx := context.Background()
	cfg := config.Load()

	writer, cleanup, err := newIndexWriter(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init vector index: %v", err)
	}
	defer cleanup()

	geminiClient, err := llm.NewGeminiClient(ctx)
	if err != nil {
		log.Fatalf("failed to init Gemini client: %v", err)
	}

	if *fromFiles {
		if *pathFlag == "" {
			log.Fatal("--path is required with --from-files")
		}
		if err := importFromFiles(ctx, writer, geminiClient, *pathFlag); err != nil {
			log.Fatalf("error importing files: %v", err)
		}
	}

	if *fromURL {
		if *baseURLFlag == "" {
			log.Fatal("--base-url is required with --from-url")
		}
		if err := importFromHTTP(ctx, writer, geminiClient, *baseURLFlag, *maxPagesFlag); err != nil {
			log.Fatalf("error importing HTTP: %v", err)
		}
	}

	log.Println("import finished")
}

func newIndexWriter(ctx context.Context, cfg *config.Config) (rag.IndexWriter, func(), error) {
	switch cfg.VectorBackend {
	case "pgvector":
		repo, err := pgvector.NewRepository(ctx, pgvector.Config{
			DatabaseURL:   cfg.DatabaseURL,
			Collection:    cfg.CollectionName,
			CreateMissing: true,
			Dimension:     llm.EmbedDim,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		client, err := qdrant.NewClient(ctx, qdrant.Config{
			URL:           cfg.QdrantURL,
			APIKey:        cfg.QdrantAPIKey,
			Collection:    cfg.CollectionName,
			CreateMissing: true,
			Dimension:     llm.EmbedDim,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}

func importFromFiles(ctx context.Context, writer rag.IndexWriter, gemini *llm.GeminiClient, rootPath string) error {
	log.Printf("importing local docs from %s", rootPath)

	return filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !isTextFile(path) {
			return nil
		}

		lpath := strings.ToLower(path)
		var content string

		switch {
		case strings.HasSuffix(lpath, ".pdf"):
			text, err := extractTextFromPDF(path)
			if err != nil {
				return fmt.Errorf("error reading pdf %s: %w", path, err)
			}
			content = text

		case strings.HasSuffix(lpath, ".html") || strings.HasSuffix(lpath, ".htm"):
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("error reading %s: %w", path, err)
			}
			content = extractMainText(string(data))

		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("error reading %s: %w", path, err)
			}
			content = string(data)
		}

		content = sanitizeUTF8(strings.TrimSpace(content))
		if content == "" {
			return nil
		}

		title := filenameToTitle(path)
		return chunkAndStore(ctx, writer, gemini, title, "", content)
	})
}

func importFromHTTP(ctx context.Context, writer rag.IndexWriter, gemini *llm.GeminiClient, baseURL string, maxPages int) error {
	log.Printf("HTTP crawl: base=%s maxPages=%d", baseURL, maxPages)

	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base-url: %w", err)
	}

	visited := make(map[string]bool)
	queue := []string{base.String()}
	pages := 0

	for len(queue) > 0 && pages < maxPages {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true
		pages++

		log.Printf("fetching %s", current)
		resp, err := http.Get(current)
		if err != nil {
			log.Printf("error GET %s: %v", current, err)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			log.Printf("status %d at %s", resp.StatusCode, current)
			resp.Body.Close()
			continue
		}

		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Printf("error reading body %s: %v", current, err)
			continue
		}

		htmlStr := string(bodyBytes)
		text := sanitizeUTF8(strings.TrimSpace(extractMainText(htmlStr)))
		if text != "" {
			title := urlToTitle(current, base)
			if err := chunkAndStore(ctx, writer, gemini, title, current, text); err != nil {
				log.Printf("error storing chunks from %s: %v", current, err)
			}
		}

		for _, link := range extractLinks(htmlStr, base) {
			if !visited[link] {
				queue = append(queue, link)
			}
		}
	}

	return nil
}

func chunkAndStore(ctx context.Context, writer rag.IndexWriter, gemini *llm.GeminiClient, title, sourceURL, content string) error {
	const maxLen = 2000

	chunks := splitIntoChunks(content, maxLen)
	if len(chunks) == 0 {
		return nil
	}

	entries := make([]rag.Entry, 0, len(chunks))
	for i, c := range chunks {
		c = sanitizeUTF8(strings.TrimSpace(c))
		if c == "" {
			continue
		}

		chunkTitle := title
		if len(chunks) > 1 {
			chunkTitle = fmt.Sprintf("%s (part %d)", title, i+1)
		}

		vec, err := gemini.Embed(ctx, c)
		if err != nil {
			return fmt.Errorf("embedding error: %w", err)
		}

		entries = append(entries, rag.Entry{
			Text:   c,
			Vector: vec,
			Metadata: map[string]string{
				"type":   string(detectDocType(c)),
				"title":  chunkTitle,
				"source": sourceURL,
				"tags":   strings.Join(detectTags(c), ","),
			},
		})
	}

	if err := writer.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert error: %w", err)
	}

	for _, e := range entries {
		log.Printf("chunk imported type=%s len=%d title=%s", e.Metadata["type"], len(e.Text), e.Metadata["title"])
	}
	return nil
}

// docType labels what kind of documentation a chunk came from; "product" is
// what flags entries as product info at query time.
type docType string

const (
	docProduct         docType = "product"
	docInstallation    docType = "installation"
	docTroubleshooting docType = "troubleshooting"
	docStandards       docType = "standards"
	docPricing         docType = "pricing"
	docOverview        docType = "overview"
)

func detectDocType(chunk string) docType {
	s := strings.ToLower(chunk)

	switch {
	case strings.Contains(s, "datasheet") || strings.Contains(s, "specifications") ||
		strings.Contains(s, "product") || strings.Contains(s, "model number"):
		return docProduct
	case strings.Contains(s, "installation") || strings.Contains(s, "mounting") ||
		strings.Contains(s, "earthing") || strings.Contains(s, "circuit breaker"):
		return docInstallation
	case strings.Contains(s, "troubleshoot") || strings.Contains(s, "fault") ||
		strings.Contains(s, "error code"):
		return docTroubleshooting
	case strings.Contains(s, "ccs") || strings.Contains(s, "chademo") ||
		strings.Contains(s, "ocpp") || strings.Contains(s, "iec 6"):
		return docStandards
	case strings.Contains(s, "tariff") || strings.Contains(s, "pricing") ||
		strings.Contains(s, "billing"):
		return docPricing
	default:
		return docOverview
	}
}

func detectTags(chunk string) []string {
	s := strings.ToLower(chunk)
	var tags []string

	add := func(t string) {
		for _, ex := range tags {
			if ex == t {
				return
			}
		}
		tags = append(tags, t)
	}

	if strings.Contains(s, "ccs") {
		add("ccs")
	}
	if strings.Contains(s, "chademo") {
		add("chademo")
	}
	if strings.Contains(s, "ocpp") {
		add("ocpp")
	}
	if strings.Contains(s, "tesla") {
		add("tesla")
	}
	if strings.Contains(s, "ac charg") || strings.Contains(s, "type 2") {
		add("ac")
	}
	if strings.Contains(s, "dc fast") || strings.Contains(s, "rapid charg") {
		add("dc-fast")
	}
	if strings.Contains(s, "load balancing") {
		add("load-balancing")
	}
	if strings.Contains(s, "roaming") {
		add("roaming")
	}
	if strings.Contains(s, "solar") {
		add("solar")
	}

	return tags
}

func isTextFile(path string) bool {
	l := strings.ToLower(path)
	return strings.HasSuffix(l, ".md") ||
		strings.HasSuffix(l, ".txt") ||
		strings.HasSuffix(l, ".html") ||
		strings.HasSuffix(l, ".htm") ||
		strings.HasSuffix(l, ".pdf")
}

func filenameToTitle(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ReplaceAll(base, "-", " ")
	return strings.TrimSpace(base)
}

func urlToTitle(raw string, base *url.URL) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == base.Path || u.Path == base.Path+"/" {
		return "Overview"
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := parts[len(parts)-1]
	last = strings.SplitN(last, ".", 2)[0]
	last = strings.ReplaceAll(last, "-", " ")
	return strings.TrimSpace(last)
}

func extractMainText(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node, bool)

	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				skip = true
			}
		}

		if n.Type == html.TextNode && !skip {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	lines := strings.Split(b.String(), "\n")
	var filtered []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" && len(l) > 1 {
			filtered = append(filtered, l)
		}
	}
	return strings.Join(filtered, "\n")
}

func extractLinks(htmlStr string, base *url.URL) []string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}
	var links []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					h := strings.TrimSpace(a.Val)
					if h == "" || strings.HasPrefix(h, "#") {
						continue
					}
					u, err := url.Parse(h)
					if err != nil {
						continue
					}
					u = base.ResolveReference(u)

					if u.Host != base.Host {
						continue
					}

					if strings.HasSuffix(u.Path, ".css") ||
						strings.HasSuffix(u.Path, ".js") ||
						strings.HasSuffix(u.Path, ".png") ||
						strings.HasSuffix(u.Path, ".jpg") ||
						strings.HasSuffix(u.Path, ".svg") {
						continue
					}

					links = append(links, u.Scheme+"://"+u.Host+u.Path)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	seen := make(map[string]bool)
	var out []string
	for _, l := range links {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func splitIntoChunks(content string, maxLen int) []string {
	content = sanitizeUTF8(strings.TrimSpace(content))
	if content == "" {
		return nil
	}
	if len(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunk := sanitizeUTF8(strings.TrimSpace(buf.String()))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for len(line) > maxLen {
			part := line[:maxLen]
			line = line[maxLen:]

			if buf.Len() > 0 {
				flush()
			}
			buf.WriteString(part)
			flush()
		}

		if buf.Len()+len(line)+1 > maxLen {
			flush()
		}

		buf.WriteString(line)
		buf.WriteRune('\n')
	}

	flush()
	return chunks
}

func extractTextFromPDF(path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}

	return sanitizeUTF8(strings.TrimSpace(buf.String())), nil
}

// sanitizeUTF8 drops invalid bytes so backends never see broken encoding.
func sanitizeUTF8(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
