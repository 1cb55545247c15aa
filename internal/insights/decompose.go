// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

package insights

// Decompose narrows one FetchRequest into leaf requests, splitting one
// dimension per recursion level: accounts, then breakdown combinations,
// then periods, then metric chunks. The function is pure and
// deterministic; leaves come back in a stable order derived from the
// input order.
//
// maxMetricsPerCall caps the fields of a single API call; metric chunking
// preserves the request's metric order.
func Decompose(req FetchRequest, maxMetricsPerCall int) ([]LeafRequest, error) {
	req = withDefaults(req)
	if err := validate(req); err != nil {
		return nil, err
	}
	if maxMetricsPerCall <= 0 {
		return nil, &DecompositionError{Reason: "maxMetricsPerCall must be positive"}
	}
	return decompose(req, maxMetricsPerCall), nil
}

func decompose(req FetchRequest, maxMetrics int) []LeafRequest {
	// Base case first: every dimension is a singleton and the metrics fit.
	if len(req.AccountIDs) == 1 && len(req.Breakdowns) == 1 && len(req.Periods) == 1 && len(req.Metrics) <= maxMetrics {
		return []LeafRequest{{
			AccountID:  req.AccountIDs[0],
			Breakdowns: req.Breakdowns[0],
			Period:     req.Periods[0],
			Metrics:    req.Metrics,
		}}
	}

	var leaves []LeafRequest
	switch {
	case len(req.AccountIDs) > 1:
		for _, account := range req.AccountIDs {
			narrowed := req
			narrowed.AccountIDs = []string{account}
			leaves = append(leaves, decompose(narrowed, maxMetrics)...)
		}
	case len(req.Breakdowns) > 1:
		for _, combo := range req.Breakdowns {
			narrowed := req
			narrowed.Breakdowns = [][]string{combo}
			leaves = append(leaves, decompose(narrowed, maxMetrics)...)
		}
	case len(req.Periods) > 1:
		for _, period := range req.Periods {
			narrowed := req
			narrowed.Periods = []string{period}
			leaves = append(leaves, decompose(narrowed, maxMetrics)...)
		}
	default:
		for _, chunk := range chunkMetrics(req.Metrics, maxMetrics) {
			narrowed := req
			narrowed.Metrics = chunk
			leaves = append(leaves, decompose(narrowed, maxMetrics)...)
		}
	}
	return leaves
}

// chunkMetrics splits metrics into slices of at most size, keeping order.
func chunkMetrics(metrics []string, size int) [][]string {
	chunks := make([][]string, 0, (len(metrics)+size-1)/size)
	for start := 0; start < len(metrics); start += size {
		end := start + size
		if end > len(metrics) {
			end = len(metrics)
		}
		chunks = append(chunks, metrics[start:end])
	}
	return chunks
}
