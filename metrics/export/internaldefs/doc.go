// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the exporters.
//
// [CounterDefs] gives every counter its own Prometheus series. [Families]
// groups the same counters into attribute-keyed instruments for OTel, with
// rotate rejections keyed by the audit reason name.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
