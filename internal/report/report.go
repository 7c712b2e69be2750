// Package report exports quiz results as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/victornm/letsquiz/internal/domain"
)

const sheet = "Results"

var header = []any{"#", "Question", "Mode", "Answer", "Correct", "Marks", "Maximum marks"}

// WriteResults writes r as an xlsx workbook with one row per quiz question, followed by
// a total row.
func WriteResults(w io.Writer, r domain.QuizResult) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("new style: %w", err)
	}

	rows := [][]any{
		{"Quiz", r.Quiz.Title},
		{"User", r.Username},
		{},
		header,
	}
	headerRow := len(rows)

	for _, e := range r.Entries {
		rows = append(rows, entryRow(e))
	}

	rows = append(rows, []any{"", "Total", "", "", "", r.Score.StringFixed(2), r.MaxScore.StringFixed(2)})

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetRowStyle(sheet, headerRow, headerRow, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetRowStyle(sheet, len(rows), len(rows), bold); err != nil {
		return fmt.Errorf("style total: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func entryRow(e domain.QuizResultEntry) []any {
	q := e.Question
	row := []any{e.Order, q.Text, string(q.Mode)}

	a := e.Attempt
	if a == nil || !a.Graded {
		return append(row, "", "", "", q.MaximumMarks.StringFixed(2))
	}

	return append(row, answerText(q, *a), yesNo(a.IsCorrect), a.MarksObtained.StringFixed(2), q.MaximumMarks.StringFixed(2))
}

func answerText(q domain.Question, a domain.AttemptedQuestion) string {
	if q.Mode == domain.ModeText {
		return a.TextAnswer
	}

	texts := make(map[int64]string, len(q.Choices))
	for _, c := range q.Choices {
		texts[c.ChoiceID] = c.Text
	}

	parts := make([]string, 0, len(a.SelectedChoiceIDs))
	for _, id := range a.SelectedChoiceIDs {
		if t, ok := texts[id]; ok {
			parts = append(parts, t)
		} else {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
	}
	return strings.Join(parts, "; ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
