// Package stratify assigns each simulant to one of 2^k risk strata.
//
// A stratum is one element of the product of k binary risk factors. Its
// label joins each factor's token in canonical factor order, for example
// "SBP_high_LDL_normal". Labels are enumerated with the first factor
// varying slowest. Assignment happens once, at initialization; the
// label column is never rewritten.
package stratify
