package scenario

import (
	"bytes"
	"os"
	"regexp"
	"text/template"

	"github.com/palantir/stacktrace"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/cerrors"
	yaml "gopkg.in/yaml.v2"
)

// Load parses, interpolates and validates a scenario document. Variables
// declared in the document are resolved into `{{ .Variables.name }}`
// placeholders before the full unmarshal, so the engine only ever sees
// resolved values.
func Load(doc []byte) (*Scenario, error) {
	// the header pass only needs the variables block; placeholders elsewhere
	// in the document are masked so they cannot break this parse
	var header struct {
		Variables map[string]interface{} `yaml:"variables"`
	}
	if err := yaml.Unmarshal(placeholderPattern.ReplaceAll(doc, []byte("null")), &header); err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: "malformed YAML: " + err.Error()}
	}

	rendered, err := interpolate(doc, header.Variables)
	if err != nil {
		return nil, err
	}

	var sc Scenario
	if err := yaml.Unmarshal(rendered, &sc); err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: "malformed YAML: " + err.Error()}
	}
	if err := sc.Validate(); err != nil {
		return nil, stacktrace.Propagate(err, "could not validate scenario document")
	}
	return &sc, nil
}

// LoadFile reads and loads a scenario document from disk
func LoadFile(path string) (*Scenario, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not read scenario file %s", path)
	}
	return Load(doc)
}

var placeholderPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)

func interpolate(doc []byte, variables map[string]interface{}) ([]byte, error) {
	if !bytes.Contains(doc, []byte("{{")) {
		return doc, nil
	}
	tmpl, err := template.New("scenario").Option("missingkey=error").Parse(string(doc))
	if err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: "bad variable placeholder: " + err.Error()}
	}
	var out bytes.Buffer
	data := struct {
		Variables map[string]interface{}
	}{Variables: variables}
	if err := tmpl.Execute(&out, data); err != nil {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeInvalidScenario, Reason: "unresolved variable: " + err.Error()}
	}
	return out.Bytes(), nil
}
