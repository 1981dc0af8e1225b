// Package language defines the closed set of episode languages and the
// configured capability table (tag, hosts, cultural context) for each.
//
// Parse accepts language names, ISO 639 codes and BCP 47 tags so CLI input and
// configuration keys resolve to the same value.
package language
