package metrics

import (
	"strings"
	"testing"
)

func TestExportContainsRecordedMetrics(t *testing.T) {
	RecordRequest("POST", "/v1/tenders/incoming_data", 200, 12)
	RecordRequest("POST", "/v1/tenders/incoming_data", 200, 8)
	RecordTenderProcessed("COMPLETED")
	RecordDocumentFetch("direct", true)
	RecordDocumentFetch("scrape", false)
	RecordAICheck("SUCCESS")
	RecordExport(true)

	out := Export()

	for _, want := range []string{
		`bord_http_requests_total{method="POST",path="/v1/tenders/incoming_data",status="200"} 2`,
		`bord_http_request_duration_ms_sum{method="POST",path="/v1/tenders/incoming_data"} 20`,
		`bord_http_request_duration_ms_count{method="POST",path="/v1/tenders/incoming_data"} 2`,
		`bord_tenders_processed_total{state="COMPLETED"} 1`,
		`bord_document_fetches_total{method="direct",success="true"} 1`,
		`bord_document_fetches_total{method="scrape",success="false"} 1`,
		`bord_ai_checks_total{status="SUCCESS"} 1`,
		`bord_crm_exports_total{success="true"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in export output", want)
		}
	}

	for _, header := range []string{
		"# TYPE bord_http_requests_total counter",
		"# TYPE bord_tenders_processed_total counter",
	} {
		if !strings.Contains(out, header) {
			t.Errorf("expected %q in export output", header)
		}
	}
}
