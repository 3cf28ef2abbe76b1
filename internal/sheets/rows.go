package sheets

import (
	"budgetwise/internal/core"
)

// Row kinds in column D.
const (
	KindSummary = "summary"
	KindGoal    = "goal"
)

// Header names the columns written by RunRows. Goal rows leave the last
// three columns empty and reuse E..H for name, category, target and
// allocated amount.
var Header = []string{
	"Month", "Run", "User", "Kind", "Status/Goal",
	"Income/Category", "Expenses/Target", "Remaining/Allocated",
	"Savings fund", "Long-term", "Short-term",
}

// RunRows lays out one run as a summary row followed by one row per goal,
// in the order the goals were allocated.
func RunRows(run core.AllocationRun) [][]string {
	month := run.Window.Key()
	res := run.Result

	rows := make([][]string, 0, 1+len(res.UpdatedGoals))
	rows = append(rows, []string{
		month, run.ID, run.UserID, KindSummary, string(run.Status),
		core.FormatAmount(res.TotalIncome),
		core.FormatAmount(res.TotalExpenses),
		core.FormatAmount(res.Remaining),
		core.FormatAmount(res.SavingsFund),
		core.FormatAmount(res.LongTermAmount),
		core.FormatAmount(res.ShortTermAmount),
	})
	for _, g := range res.UpdatedGoals {
		rows = append(rows, []string{
			month, run.ID, run.UserID, KindGoal, g.Name,
			g.Category.String(),
			core.FormatAmount(g.TargetAmount),
			core.FormatAmount(g.AllocatedAmount),
		})
	}
	return rows
}
