// Package health computes the 0–100 composite health score for each post
// from its maintenance trigger ratios, keeps an append-only score history,
// and folds maintenance KPIs per line.
package health
