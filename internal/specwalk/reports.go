package specwalk

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ReferencedReportsID is the reserved data point type under which the
// referenced-reports subtree of a framework travels through the split.
const ReferencedReportsID = "referencedReports"

// dataSourceField is the sub-object inside a leaf value that cites an
// external document.
const dataSourceField = "dataSource"

// Report is the document metadata a framework declares under its
// referenced-reports path, keyed in the document by file name.
type Report struct {
	FileReference   string `json:"fileReference"`
	FileName        string `json:"fileName,omitempty"`
	PublicationDate string `json:"publicationDate,omitempty"`
}

// ErrInconsistentReports is returned when the documents cited by individual
// data points do not line up with the dataset's declared report list.
var ErrInconsistentReports = errors.New("inconsistent referenced reports")

// InsertReportsMarker grafts a synthetic leaf for the referenced-reports
// subtree into a parsed framework template, so the ordinary split and
// assemble walks pick the subtree up like any other data point. A template
// without a referenced-reports path is left untouched.
func InsertReportsMarker(template json.RawMessage, reportsPath string) (json.RawMessage, error) {
	if reportsPath == "" {
		return template, nil
	}
	root, err := parseObject(template)
	if err != nil {
		return nil, fmt.Errorf("%w: framework template: %v", ErrMalformedDocument, err)
	}
	node := root
	segments := ParsePath(reportsPath)
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = map[string]any{
		"id":  ReferencedReportsID,
		"ref": reportsPath,
	}
	return json.Marshal(root)
}

// ParseReports decodes the referenced-reports leaf content into the declared
// report list. Null content yields an empty list.
func ParseReports(raw json.RawMessage) (map[string]Report, error) {
	if IsEmptyContent(raw) {
		return map[string]Report{}, nil
	}
	var reports map[string]Report
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, fmt.Errorf("%w: referenced reports: %v", ErrMalformedDocument, err)
	}
	for name, report := range reports {
		if report.FileReference == "" {
			return nil, fmt.Errorf("%w: report %q has no file reference", ErrInconsistentReports, name)
		}
		if report.FileName == "" {
			report.FileName = name
			reports[name] = report
		}
	}
	return reports, nil
}

// ReportFromDataSource extracts the document citation of a single leaf
// value, when the leaf carries one.
func ReportFromDataSource(content json.RawMessage) (*Report, bool) {
	var value struct {
		DataSource *Report `json:"dataSource"`
	}
	if err := json.Unmarshal(content, &value); err != nil {
		return nil, false
	}
	if value.DataSource == nil || value.DataSource.FileReference == "" {
		return nil, false
	}
	return value.DataSource, true
}

// StampReportMetadata rewrites a leaf value so that its dataSource
// sub-object carries the publication date and file name declared for the
// cited file in the dataset's report list. Values without a matching
// citation pass through unchanged.
func StampReportMetadata(content json.RawMessage, declaredByRef map[string]Report) (json.RawMessage, error) {
	if len(declaredByRef) == 0 || IsEmptyContent(content) {
		return content, nil
	}
	var value map[string]any
	if err := json.Unmarshal(content, &value); err != nil {
		// Scalar leaf; nothing to stamp.
		return content, nil
	}
	source, ok := value[dataSourceField].(map[string]any)
	if !ok {
		return content, nil
	}
	fileReference, _ := source["fileReference"].(string)
	declared, ok := declaredByRef[fileReference]
	if !ok {
		return content, nil
	}
	if declared.PublicationDate != "" {
		source["publicationDate"] = declared.PublicationDate
	}
	if declared.FileName != "" {
		source["fileName"] = declared.FileName
	}
	return json.Marshal(value)
}

// ValidateReportConsistency checks that the set of file references observed
// in the dataset's leaves matches the declared report list exactly. A leaf
// citing an undeclared document, or a declared document no leaf cites, both
// reject the upload.
func ValidateReportConsistency(declared map[string]Report, observed map[string]struct{}) error {
	declaredRefs := map[string]struct{}{}
	for _, report := range declared {
		declaredRefs[report.FileReference] = struct{}{}
	}
	for ref := range observed {
		if _, ok := declaredRefs[ref]; !ok {
			return fmt.Errorf("%w: data source cites undeclared document %s", ErrInconsistentReports, ref)
		}
	}
	for ref := range declaredRefs {
		if _, ok := observed[ref]; !ok {
			return fmt.Errorf("%w: declared document %s is cited by no data point", ErrInconsistentReports, ref)
		}
	}
	return nil
}
