// Package versification defines the addressing model shared by the mapping
// engine: traditions, canonical books, verse references and ranges, and the
// mapping rules that relate one tradition's numbering to another's.
//
// # Ordering
//
// References are ordered by an encoded Position of (chapter, verse, sub-verse).
// A reference without a sub-verse letter covers every part of its verse, so
// each reference has a low and a high bound:
//
//	Ps.3.1   low = (3,1,-)   high = (3,1,max)
//	Ps.3.1a  low = (3,1,a)   high = (3,1,a)
//
// Ranges compare and overlap on these bounds, which lets "Ps.3.1" match a
// table entry that only covers "Ps.3.1b".
//
// # Rule kinds
//
// RuleKind is a closed set. Identity, Shift and Renumber are arithmetic: the
// source and target ranges have the same shape and a verse maps by a constant
// (chapter, verse) offset. Merge collapses a multi-verse source into one
// target verse, Split is its inverse. Omit has no target, Insert no source.
package versification
