package report

// Column headers of the report sheet.
const (
	ColPath        = "경로"
	ColMethod      = "Method"
	ColURL         = "진단 URL"
	ColMenuLabel   = "메뉴명(추정)"
	ColMatchScore  = "매칭점수"
	ColParams      = "파라미터"
	ColResult      = "진단결과"
	ColTime        = "진단 시각"
	ColRemark      = "비고"
	ColRemarkDebug = "비고(매칭점수)"
)

// Layout selects the optional columns of a report.
type Layout struct {
	IncludeTime bool
	Debug       bool
}

// Columns returns the headers of the report in order.
func (l Layout) Columns() []string {
	cols := []string{ColPath, ColMethod, ColURL}
	if l.Debug {
		cols = append(cols, ColMenuLabel, ColMatchScore)
	}
	cols = append(cols, ColParams, ColResult)
	if l.IncludeTime {
		cols = append(cols, ColTime)
	}
	if l.Debug {
		return append(cols, ColRemarkDebug)
	}
	return append(cols, ColRemark)
}

// Values returns the cells of r matching Columns.
func (l Layout) Values(r Row) []string {
	vals := []string{r.Path, r.Method, r.URL}
	if l.Debug {
		vals = append(vals, r.MenuLabel, r.MatchScore)
	}
	vals = append(vals, r.Params, r.Result)
	if l.IncludeTime {
		vals = append(vals, r.Timestamp)
	}
	return append(vals, r.Remark)
}
