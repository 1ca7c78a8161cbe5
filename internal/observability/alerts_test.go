package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/notarium/notarium/internal/jobs"
)

var metricName = regexp.MustCompile(`notarium_[a-z_]+`)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertFile struct {
	Groups []alertGroup `yaml:"groups"`
}

func loadAlertFile(t *testing.T) alertFile {
	t.Helper()
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var doc alertFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}
	return doc
}

func TestLedgerAlertRules(t *testing.T) {
	doc := loadAlertFile(t)

	if len(doc.Groups) == 0 {
		t.Fatal("expected at least one alert group")
	}

	var ledgerGroup *alertGroup
	for i := range doc.Groups {
		if doc.Groups[i].Name == "ledger" {
			ledgerGroup = &doc.Groups[i]
			break
		}
	}
	if ledgerGroup == nil {
		t.Fatal("ledger alert group missing")
	}

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":       {severity: "critical", runbook: "docs/runbook-ledger.md#high-error-rate"},
		"LedgerImbalance":     {severity: "critical", runbook: "docs/runbook-ledger.md#ledger-imbalance"},
		"IntegrityJobFailing": {severity: "warning", runbook: "docs/runbook-ledger.md#integrity-job"},
	}

	if len(ledgerGroup.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(ledgerGroup.Rules))
	}

	for _, rule := range ledgerGroup.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.Expr == "" {
			t.Fatalf("rule %s must define an expression", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
	}
}

func TestLedgerAlertsQueryExportedSeries(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/trial-balance", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/trial-balance", nil))
	jobs.AddImbalances(1)
	_ = jobs.Track("ledger:integrity").End(errors.New("unbalanced"))

	families, err := metrics.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	exported := map[string]bool{}
	for _, family := range families {
		exported[family.GetName()] = true
	}

	exprs := map[string]string{}
	for _, group := range loadAlertFile(t).Groups {
		for _, rule := range group.Rules {
			exprs[rule.Alert] = rule.Expr
			for _, name := range metricName.FindAllString(rule.Expr, -1) {
				if !exported[name] {
					t.Fatalf("rule %s queries %s which no collector exports", rule.Alert, name)
				}
			}
		}
	}

	if !strings.Contains(exprs["LedgerImbalance"], "notarium_ledger_imbalances_total") {
		t.Fatalf("LedgerImbalance must watch the integrity imbalance counter: %s", exprs["LedgerImbalance"])
	}
	if !strings.Contains(exprs["IntegrityJobFailing"], `job="ledger:integrity"`) {
		t.Fatalf("IntegrityJobFailing must select the integrity task: %s", exprs["IntegrityJobFailing"])
	}
	if !strings.Contains(exprs["HighErrorRate"], `code=~"5.."`) {
		t.Fatalf("HighErrorRate must select server errors: %s", exprs["HighErrorRate"])
	}
}
