package dashboard

import (
	"fmt"
	"io"
	"slices"
	"strings"

	taskentity "github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

const barWidth = 20

var statusLabels = map[taskentity.Status]string{
	taskentity.StatusPending:    "等待中",
	taskentity.StatusProcessing: "发布中",
	taskentity.StatusCompleted:  "已完成",
	taskentity.StatusFailed:     "失败",
	taskentity.StatusCancelled:  "已取消",
}

// Bar draws a fixed-width progress bar for a percentage
func Bar(percent int) string {
	percent = max(0, min(percent, 100))
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled) + "]"
}

// Render writes the snapshot as text
func Render(w io.Writer, s Snapshot) error {
	var b strings.Builder

	switch s.State {
	case StateIdle, StateLoading:
		b.WriteString("加载中...\n")
		_, err := io.WriteString(w, b.String())
		return err
	case StateError:
		fmt.Fprintf(&b, "加载失败: %v\n", s.Err)
	case StateLoaded:
	}

	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "更新于 %s  活跃账号 %d  任务 %d\n\n",
			s.UpdatedAt.Format("15:04:05"), len(s.Accounts), len(s.Tasks))
	}

	if len(s.Tasks) == 0 && s.State == StateLoaded {
		b.WriteString("暂无发布任务\n")
	}

	for _, t := range s.Tasks {
		renderTask(&b, t)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderTask(b *strings.Builder, t taskentity.Task) {
	label, ok := statusLabels[t.Status]
	if !ok {
		label = string(t.Status)
	}

	fmt.Fprintf(b, "%s %s  %s %3d%%  成功 %d  失败 %d  积分 %d\n",
		label, t.Title, Bar(t.Progress), t.Progress, t.PublishedCount, t.FailedCount, t.CreditsCost)

	for _, p := range platformsOf(t) {
		st := t.PlatformStats[p]
		percent := 0
		if st.Total > 0 {
			percent = (st.Published + st.Failed) * 100 / st.Total
		}
		fmt.Fprintf(b, "    %-12s %s %d/%d 成功  %d 失败\n", p, Bar(percent), st.Published, st.Total, st.Failed)
	}
}

// platformsOf lists the platforms with stats in target order, then any others sorted
func platformsOf(t taskentity.Task) []platform.Platform {
	out := make([]platform.Platform, 0, len(t.PlatformStats))
	for _, p := range t.TargetPlatforms {
		if _, ok := t.PlatformStats[p]; ok && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}

	var rest []platform.Platform
	for p := range t.PlatformStats {
		if !slices.Contains(out, p) {
			rest = append(rest, p)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
