// Package model defines the domain types used across the application.
package model

import (
	"slices"
	"time"
)

// Source is the storefront an offer belongs to.
type Source string

// Built-in source tags.
const (
	SourceEpic  Source = "epic"
	SourceSteam Source = "steam"
	SourceGOG   Source = "gog"
	SourcePrime Source = "prime"
	SourceOther Source = "other"
)

// RawEntry is a single feed entry as returned by a feed source. GUID holds
// the RSS guid or the Atom id.
type RawEntry struct {
	GUID  string
	Title string
	Link  string
}

// Offer is a normalized feed item.
type Offer struct {
	Key    string
	Title  string
	Source Source
	Link   string
}

// SourceSet is a set of source tags.
type SourceSet map[Source]struct{}

// NewSourceSet builds a set from the given tags.
func NewSourceSet(tags ...Source) SourceSet {
	s := make(SourceSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether the set contains tag.
func (s SourceSet) Has(tag Source) bool {
	_, ok := s[tag]
	return ok
}

// Union returns a new set with the tags of s and other.
func (s SourceSet) Union(other SourceSet) SourceSet {
	out := make(SourceSet, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Without returns a new set with the tags of other removed.
func (s SourceSet) Without(other SourceSet) SourceSet {
	out := make(SourceSet, len(s))
	for t := range s {
		if !other.Has(t) {
			out[t] = struct{}{}
		}
	}
	return out
}

// Sorted returns the tags in lexical order.
func (s SourceSet) Sorted() []Source {
	out := make([]Source, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Subscriber is a chat that receives offer notifications.
type Subscriber struct {
	ID         int64
	Interests  SourceSet
	MutedUntil time.Time // zero means never muted
	CreatedAt  time.Time
}

// IsMuted reports whether automatic delivery is suppressed at now.
func (s Subscriber) IsMuted(now time.Time) bool {
	return !s.MutedUntil.IsZero() && s.MutedUntil.After(now)
}

// Wants reports whether the subscriber is interested in offers from src.
func (s Subscriber) Wants(src Source) bool {
	return s.Interests.Has(src)
}

// DeliveryRecord proves that an offer key reached at least one subscriber.
type DeliveryRecord struct {
	Key       string
	FirstSeen time.Time
}

// DeliveryReport aggregates delivery outcomes for diagnostics.
type DeliveryReport struct {
	Delivered         int
	SkippedDedup      int
	SkippedPreference int
	Failed            int
}

// Add merges other into r.
func (r *DeliveryReport) Add(other DeliveryReport) {
	r.Delivered += other.Delivered
	r.SkippedDedup += other.SkippedDedup
	r.SkippedPreference += other.SkippedPreference
	r.Failed += other.Failed
}

// View is the read-only list of offers currently available to a subscriber.
type View struct {
	Offers    []Offer
	Truncated bool
}
