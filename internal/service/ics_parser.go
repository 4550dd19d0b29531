package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/BorisSavianov/doxa-backend/internal/model"
)

// ── ICS 解析器 ──────────────────────────────────────────────
//
// 职责：将标准 iCalendar (RFC 5545) 内容解析为不可用时间段列表。
//
//   - 每个 VEVENT 对应一个 [DTSTART, DTEND] 闭区间
//   - 全天事件（VALUE=DATE）覆盖整天，DTEND 为次日零点时取前一天结束
//   - RRULE 仅展开 DAILY / WEEKLY，并截止到 horizon
//   - EXDATE 中的日期跳过
//   - SUMMARY 作为不可用原因
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize  = 5 * 1024 * 1024 // 5MB
	icsFetchTimeout = 30 * time.Second
	icsMaxReasonLen = 200
	icsMaxOccurs    = 500
)

// FetchICSContent 从 URL 获取 ICS 内容
func FetchICSContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	// webcal:// → https://
	u := rawURL
	if strings.HasPrefix(u, "webcal://") {
		u = "https://" + strings.TrimPrefix(u, "webcal://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	client := &http.Client{Timeout: icsFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取 ICS 失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("获取 ICS 失败: HTTP %d", resp.StatusCode)
	}
	// 限制响应体大小，防止恶意 URL 返回超大内容导致 OOM
	return struct {
		io.Reader
		io.Closer
	}{
		Reader: io.LimitReader(resp.Body, icsMaxFileSize),
		Closer: resp.Body,
	}, nil
}

// ParseUnavailabilityICS 解析 ICS 内容为 userID 的不可用时间段
//
// 结束时间早于 from 的时间段被丢弃，重复事件最多展开到 horizon。
// 结果按开始时间排序并去重。
func ParseUnavailabilityICS(reader io.Reader, userID string, loc *time.Location, from, horizon time.Time) ([]model.Unavailability, error) {
	cal, err := ics.ParseCalendar(reader)
	if err != nil {
		return nil, fmt.Errorf("ICS 格式解析失败: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}

	type span struct{ start, end time.Time }
	seen := make(map[span]bool)
	var result []model.Unavailability

	for _, evt := range cal.Events() {
		reason := eventReason(evt)
		for _, occ := range expandVEvent(evt, loc, horizon) {
			if occ.end.Before(from) {
				continue
			}
			key := span{occ.start, occ.end}
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, model.Unavailability{
				UserID:    userID,
				StartDate: occ.start.UTC(),
				EndDate:   occ.end.UTC(),
				Reason:    reason,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result, nil
}

type occurrence struct {
	start, end time.Time
}

// expandVEvent 展开单个 VEVENT 的所有发生时间
func expandVEvent(evt *ics.VEvent, loc *time.Location, horizon time.Time) []occurrence {
	start, allDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
	if err != nil {
		return nil
	}
	end, _, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc)
	if err != nil {
		// 无 DTEND：全天事件占满当天，否则视为瞬时事件
		if allDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start
		}
	}
	if allDay && end.After(start) {
		end = end.Add(-time.Nanosecond)
	}
	if end.Before(start) {
		return nil
	}
	length := end.Sub(start)

	rruleProp := evt.GetProperty(ics.ComponentPropertyRrule)
	if rruleProp == nil {
		return []occurrence{{start: start, end: end}}
	}

	rule := parseRRule(rruleProp.Value)
	var step func(time.Time) time.Time
	switch rule.freq {
	case "DAILY":
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, rule.interval) }
	case "WEEKLY":
		step = func(t time.Time) time.Time { return t.AddDate(0, 0, 7*rule.interval) }
	default:
		return []occurrence{{start: start, end: end}}
	}

	exDates := parseExDates(evt, loc)
	var out []occurrence
	count := 0
	for current := start; ; current = step(current) {
		if !rule.until.IsZero() && current.After(rule.until) {
			break
		}
		if rule.count > 0 && count >= rule.count {
			break
		}
		if current.After(horizon) || count >= icsMaxOccurs {
			break
		}
		count++
		if exDates[current.In(loc).Format("20060102")] {
			continue
		}
		out = append(out, occurrence{start: current, end: current.Add(length)})
	}
	return out
}

func eventReason(evt *ics.VEvent) string {
	summary := evt.GetProperty(ics.ComponentPropertySummary)
	if summary == nil {
		return ""
	}
	reason := strings.TrimSpace(summary.Value)
	if r := []rune(reason); len(r) > icsMaxReasonLen {
		reason = string(r[:icsMaxReasonLen])
	}
	return reason
}

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
}

// parseRRule 解析 RRULE 字符串（如 FREQ=WEEKLY;COUNT=16;INTERVAL=1）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			fmt.Sscanf(kv[1], "%d", &r.interval)
		case "COUNT":
			fmt.Sscanf(kv[1], "%d", &r.count)
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				t, _ = time.Parse("20060102", kv[1])
			}
			r.until = t
		}
	}
	if r.interval < 1 {
		r.interval = 1
	}
	return r
}

// parseExDates 解析事件中所有 EXDATE（可能以逗号分隔多个日期）
func parseExDates(evt *ics.VEvent, loc *time.Location) map[string]bool {
	exDates := make(map[string]bool)
	for _, prop := range evt.Properties {
		if prop.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, val := range strings.Split(prop.Value, ",") {
			t, err := time.Parse("20060102T150405Z", val)
			if err != nil {
				t, err = time.ParseInLocation("20060102T150405", val, loc)
				if err != nil {
					t, err = time.ParseInLocation("20060102", val, loc)
				}
			}
			if err == nil {
				exDates[t.In(loc).Format("20060102")] = true
			}
		}
	}
	return exDates
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性，第二个返回值表示是否为全天日期
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, bool, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", propName)
	}
	val := strings.TrimSpace(prop.Value)

	tzid := ""
	for k, v := range prop.ICalParameters {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			tzid = v[0]
		}
	}

	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t.In(loc), false, nil
	}
	if t, err := time.Parse("20060102T150405", val); err == nil {
		zone := loc
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				zone = tzLoc
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, zone).In(loc), false, nil
	}
	if t, err := time.Parse("20060102", val); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true, nil
	}

	return time.Time{}, false, fmt.Errorf("无法解析日期: %s", val)
}
