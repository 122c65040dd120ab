package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for HTTP requests and pipeline work.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	tendersProcessed = make(map[string]int64)
	documentFetches  = make(map[fetchKey]int64)
	aiChecks         = make(map[string]int64)
	exportsTotal     = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type fetchKey struct {
	Method  string
	Success string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordTenderProcessed counts a finished pipeline run by its final state.
func RecordTenderProcessed(finalState string) {
	mu.Lock()
	defer mu.Unlock()
	tendersProcessed[finalState]++
}

// RecordDocumentFetch counts one document acquisition attempt. Method is
// "direct" or "scrape".
func RecordDocumentFetch(method string, success bool) {
	mu.Lock()
	defer mu.Unlock()
	documentFetches[fetchKey{Method: method, Success: boolLabel(success)}]++
}

// RecordAICheck counts one classification attempt by terminal status.
func RecordAICheck(status string) {
	mu.Lock()
	defer mu.Unlock()
	aiChecks[status]++
}

// RecordExport counts one CRM export attempt.
func RecordExport(success bool) {
	mu.Lock()
	defer mu.Unlock()
	exportsTotal[boolLabel(success)]++
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP bord_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE bord_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		v := requestsTotal[k]
		fmt.Fprintf(&b, "bord_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, v)
	}

	b.WriteString("# HELP bord_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE bord_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP bord_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE bord_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "bord_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "bord_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP bord_tenders_processed_total Finished pipeline runs by final state\n")
	b.WriteString("# TYPE bord_tenders_processed_total counter\n")
	for _, s := range sortedKeys(tendersProcessed) {
		fmt.Fprintf(&b, "bord_tenders_processed_total{state=\"%s\"} %d\n", s, tendersProcessed[s])
	}

	b.WriteString("# HELP bord_document_fetches_total Document acquisition attempts\n")
	b.WriteString("# TYPE bord_document_fetches_total counter\n")

	var fetchKeys []fetchKey
	for k := range documentFetches {
		fetchKeys = append(fetchKeys, k)
	}
	sort.Slice(fetchKeys, func(i, j int) bool {
		if fetchKeys[i].Method != fetchKeys[j].Method {
			return fetchKeys[i].Method < fetchKeys[j].Method
		}
		return fetchKeys[i].Success < fetchKeys[j].Success
	})
	for _, k := range fetchKeys {
		fmt.Fprintf(&b, "bord_document_fetches_total{method=\"%s\",success=\"%s\"} %d\n",
			k.Method, k.Success, documentFetches[k])
	}

	b.WriteString("# HELP bord_ai_checks_total Classification attempts by terminal status\n")
	b.WriteString("# TYPE bord_ai_checks_total counter\n")
	for _, s := range sortedKeys(aiChecks) {
		fmt.Fprintf(&b, "bord_ai_checks_total{status=\"%s\"} %d\n", s, aiChecks[s])
	}

	b.WriteString("# HELP bord_crm_exports_total CRM export attempts\n")
	b.WriteString("# TYPE bord_crm_exports_total counter\n")
	for _, s := range sortedKeys(exportsTotal) {
		fmt.Fprintf(&b, "bord_crm_exports_total{success=\"%s\"} %d\n", s, exportsTotal[s])
	}

	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
