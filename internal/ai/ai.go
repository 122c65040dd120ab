// Package ai submits tender documents to the external classification
// service and polls the resulting task until a terminal verdict.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollBudget   = 600 * time.Second
)

// eligibleExtensions are the file types the classification service parses.
var eligibleExtensions = []string{".txt", ".doc", ".docx", ".pdf", ".xlsx", ".xls", ".html"}

// DocumentSource resolves documents hosted in the object store into bytes.
type DocumentSource interface {
	Fetch(ctx context.Context, storeURL string) ([]byte, string, error)
	Contains(rawURL string) bool
}

// Fetcher downloads documents that still live on a foreign host.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// CheckStore persists the lifecycle of one classification attempt.
type CheckStore interface {
	InsertAICheck(ctx context.Context, tenderID, taskID string) (int64, error)
	UpdateAICheck(ctx context.Context, id int64, status, response string) error
}

// Classifier talks to the classification service: multipart submit, then
// status polling on a fixed interval within a total budget.
type Classifier struct {
	BaseURL      string
	Token        string
	PollInterval time.Duration
	PollBudget   time.Duration

	http    *http.Client
	docs    DocumentSource
	fetcher Fetcher
	checks  CheckStore
	logger  *slog.Logger
}

func NewClassifier(baseURL, token string, docs DocumentSource, fetcher Fetcher, checks CheckStore, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		PollInterval: defaultPollInterval,
		PollBudget:   defaultPollBudget,
		http:         &http.Client{Timeout: 30 * time.Second},
		docs:         docs,
		fetcher:      fetcher,
		checks:       checks,
		logger:       logger,
	}
}

type taskStatus struct {
	Status string     `json:"status"`
	Result taskResult `json:"result"`
}

type taskResult struct {
	Parameters []struct {
		AcceptedForRecommendation bool `json:"accepted_for_recommendation"`
	} `json:"parameters"`
}

func (r taskResult) anyAccepted() bool {
	for _, p := range r.Parameters {
		if p.AcceptedForRecommendation {
			return true
		}
	}
	return false
}

// Classify runs one classification attempt for the tender. AI-layer
// failures are classification rejections, not pipeline faults: a missing
// parsable document, a failed submit or poll, a service-side ERROR, and
// budget exhaustion all return accepted=false with a nil error. Errors are
// reserved for persistence faults. Every outcome past submission is
// recorded on the tender's ai_checks row.
func (c *Classifier) Classify(ctx context.Context, tender *model.Tender) (bool, error) {
	taskID, err := c.submit(ctx, tender)
	if err != nil {
		c.logger.Error("could not submit tender for classification", "tender_id", tender.ExternalID, "error", err)
		return false, nil
	}
	checkID, err := c.checks.InsertAICheck(ctx, tender.ExternalID, taskID)
	if err != nil {
		return false, fmt.Errorf("open ai check: %w", err)
	}
	c.logger.Info("ai task created", "tender_id", tender.ExternalID, "task_id", taskID)

	deadline := time.Now().Add(c.PollBudget)
	for {
		status, raw, err := c.pollTask(ctx, taskID)
		if err != nil {
			c.logger.Error("ai status poll failed", "tender_id", tender.ExternalID, "task_id", taskID, "error", err)
			if updErr := c.checks.UpdateAICheck(ctx, checkID, model.AIStatusFailed, ""); updErr != nil {
				return false, updErr
			}
			return false, nil
		}

		switch status.Status {
		case model.AIStatusSuccess:
			accepted := status.Result.anyAccepted()
			if err := c.checks.UpdateAICheck(ctx, checkID, model.AIStatusSuccess, raw); err != nil {
				return false, err
			}
			c.logger.Info("ai check finished", "tender_id", tender.ExternalID, "accepted", accepted)
			return accepted, nil
		case model.AIStatusRejected:
			if err := c.checks.UpdateAICheck(ctx, checkID, model.AIStatusRejected, raw); err != nil {
				return false, err
			}
			c.logger.Info("ai check rejected tender", "tender_id", tender.ExternalID)
			return false, nil
		case model.AIStatusError:
			c.logger.Error("ai task ended in error", "tender_id", tender.ExternalID, "task_id", taskID)
			if err := c.checks.UpdateAICheck(ctx, checkID, model.AIStatusError, raw); err != nil {
				return false, err
			}
			return false, nil
		}

		if time.Now().After(deadline) {
			c.logger.Error("ai task polling timed out", "tender_id", tender.ExternalID, "task_id", taskID, "budget", c.PollBudget)
			if err := c.checks.UpdateAICheck(ctx, checkID, model.AIStatusTimeout, ""); err != nil {
				return false, err
			}
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

// eligible reports whether the service can parse the document's file type.
func eligible(fileName string) bool {
	name := strings.ToLower(fileName)
	for _, ext := range eligibleExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// submit uploads the tender's first eligible document as a multipart request
// and returns the created task id. 200 and 202 both count as accepted.
func (c *Classifier) submit(ctx context.Context, tender *model.Tender) (string, error) {
	var doc *model.Document
	for i := range tender.Docs {
		if tender.Docs[i].URL != "" && eligible(tender.Docs[i].FileName) {
			doc = &tender.Docs[i]
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("tender %s has no document the service can parse", tender.ExternalID)
	}

	content, fileName, err := c.loadDocument(ctx, doc)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := writer.WriteField("details", ""); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/parse", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("POST /parse: HTTP %d", resp.StatusCode)
	}

	var created struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode parse response: %w", err)
	}
	if created.TaskID == "" {
		return "", fmt.Errorf("parse response missing task_id")
	}
	return created.TaskID, nil
}

// loadDocument reads the document bytes from the object store when the URL
// is under the store host, otherwise downloads it directly.
func (c *Classifier) loadDocument(ctx context.Context, doc *model.Document) ([]byte, string, error) {
	if c.docs.Contains(doc.URL) {
		content, fileName, err := c.docs.Fetch(ctx, doc.URL)
		if err != nil {
			return nil, "", fmt.Errorf("fetch %s from store: %w", doc.URL, err)
		}
		return content, fileName, nil
	}
	content, err := c.fetcher.Get(ctx, doc.URL)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", doc.URL, err)
	}
	return content, doc.FileName, nil
}

func (c *Classifier) pollTask(ctx context.Context, taskID string) (*taskStatus, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/task_status/"+taskID, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("GET /task_status/%s: HTTP %d", taskID, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	var status taskStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, "", fmt.Errorf("decode task status: %w", err)
	}
	return &status, string(raw), nil
}
