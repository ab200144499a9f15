// Package notify implements the rule evaluation engine and webhook delivery
// for qualtrack notifications. Rules are evaluated against metric status
// transitions observed as new measurements are stored; webhooks are delivered
// to Teams, Slack, or generic HTTP targets.
package notify
