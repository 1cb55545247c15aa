// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package schema

import (
	"sort"
)

// actionStat is the nested action breakdown the platform returns for
// action-valued metrics (one entry per action type).
var actionStat = Repeated(Record(
	NamedField{Name: "action_type", Type: String()},
	NamedField{Name: "value", Type: Float()},
))

// rankingEnum is the platform's three-bucket ad ranking diagnostic.
var rankingEnum = Enum("above_average", "average", "below_average")

// insightMetrics declares every metric the collector requests, keyed by the
// platform field name. The declaration drives both the request field lists
// and the derived table columns.
var insightMetrics = map[string]FieldType{
	"account_id":                     String(),
	"account_name":                   Optional(String()),
	"ad_id":                          String(),
	"ad_name":                        Optional(String()),
	"adset_id":                       Optional(String()),
	"adset_name":                     Optional(String()),
	"campaign_id":                    Optional(String()),
	"campaign_name":                  Optional(String()),
	"date_start":                     Date(),
	"date_stop":                      Date(),
	"impressions":                    Optional(Integer()),
	"clicks":                         Optional(Integer()),
	"unique_clicks":                  Optional(Integer()),
	"reach":                          Optional(Integer()),
	"frequency":                      Optional(Float()),
	"spend":                          Optional(Float()),
	"cpc":                            Optional(Float()),
	"cpm":                            Optional(Float()),
	"cpp":                            Optional(Float()),
	"ctr":                            Optional(Float()),
	"unique_ctr":                     Optional(Float()),
	"inline_link_clicks":             Optional(Integer()),
	"inline_link_click_ctr":          Optional(Float()),
	"inline_post_engagement":         Optional(Integer()),
	"cost_per_inline_link_click":     Optional(Float()),
	"cost_per_unique_click":          Optional(Float()),
	"actions":                        Optional(actionStat),
	"action_values":                  Optional(actionStat),
	"conversions":                    Optional(actionStat),
	"conversion_values":              Optional(actionStat),
	"cost_per_action_type":           Optional(actionStat),
	"cost_per_conversion":            Optional(actionStat),
	"purchase_roas":                  Optional(actionStat),
	"website_purchase_roas":          Optional(actionStat),
	"video_play_actions":             Optional(actionStat),
	"video_p25_watched_actions":      Optional(actionStat),
	"video_p50_watched_actions":      Optional(actionStat),
	"video_p75_watched_actions":      Optional(actionStat),
	"video_p100_watched_actions":     Optional(actionStat),
	"video_avg_time_watched_actions": Optional(actionStat),
	"objective":                      Optional(String()),
	"buying_type":                    Optional(String()),
	"attribution_setting":            Optional(String()),
	"quality_ranking":                Optional(rankingEnum),
	"engagement_rate_ranking":        Optional(rankingEnum),
	"conversion_rate_ranking":        Optional(rankingEnum),
	"social_spend":                   Optional(Float()),
	"full_view_impressions":          Optional(Integer()),
	"full_view_reach":                Optional(Integer()),
}

// breakdownFields declares the dimension columns a breakdown combination
// can contribute to a table.
var breakdownFields = map[string]FieldType{
	"age":                Optional(String()),
	"gender":             Optional(Enum("male", "female", "unknown")),
	"country":            Optional(String()),
	"region":             Optional(String()),
	"publisher_platform": Optional(String()),
	"platform_position":  Optional(String()),
	"impression_device":  Optional(String()),
	"device_platform":    Optional(String()),
	"hourly_stats_aggregated_by_advertiser_time_zone": Optional(String()),
}

// MetricNames returns every declared metric name in stable sorted order.
// Callers chunk this list into request field sets, so stability matters.
func MetricNames() []string {
	names := make([]string, 0, len(insightMetrics))
	for name := range insightMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MetricType looks up the declared type of one metric.
func MetricType(name string) (FieldType, error) {
	t, ok := insightMetrics[name]
	if !ok {
		return FieldType{}, &ConfigurationError{Field: name, Reason: "metric is not declared in the registry"}
	}
	return t, nil
}

// BreakdownType looks up the declared type of one breakdown dimension.
func BreakdownType(name string) (FieldType, error) {
	t, ok := breakdownFields[name]
	if !ok {
		return FieldType{}, &ConfigurationError{Field: name, Reason: "breakdown is not declared in the registry"}
	}
	return t, nil
}

// InsightColumns derives the full column set for a table holding the given
// metrics under the given breakdown combination, in declaration order:
// record identity first, then breakdown dimensions, then metrics.
func InsightColumns(metrics, breakdowns []string) ([]Column, error) {
	fields := []NamedField{
		{Name: "insight_id", Type: String()},
		{Name: "collected_at", Type: Timestamp()},
	}
	for _, b := range breakdowns {
		t, err := BreakdownType(b)
		if err != nil {
			return nil, err
		}
		fields = append(fields, NamedField{Name: b, Type: t})
	}
	for _, m := range metrics {
		t, err := MetricType(m)
		if err != nil {
			return nil, err
		}
		fields = append(fields, NamedField{Name: m, Type: t})
	}
	return Convert(fields)
}
