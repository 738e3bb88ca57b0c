// Package query holds the client-side view of a listen target: the membership
// predicate and the result ordering for one collection query.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/syntrixbase/syntrix-client/pkg/model"
)

// Query is immutable once built by New.
type Query struct {
	collection string
	filters    []model.Filter
	orderBy    []model.OrderBy
	program    cel.Program
	canonical  string
}

// New validates and compiles a query.
func New(collection string, filters []model.Filter, orderBy []model.OrderBy) (*Query, error) {
	if collection == "" {
		return nil, fmt.Errorf("%w: collection is required", model.ErrInvalidQuery)
	}
	for _, o := range orderBy {
		if o.Field == "" {
			return nil, fmt.Errorf("%w: order by field is required", model.ErrInvalidQuery)
		}
		if o.Direction != "" && o.Direction != model.Asc && o.Direction != model.Desc {
			return nil, fmt.Errorf("%w: bad direction %q", model.ErrInvalidQuery, o.Direction)
		}
	}

	c, err := newCompiler()
	if err != nil {
		return nil, err
	}
	prg, err := c.compileFilters(filters)
	if err != nil {
		return nil, err
	}

	q := &Query{
		collection: collection,
		filters:    append([]model.Filter(nil), filters...),
		orderBy:    append([]model.OrderBy(nil), orderBy...),
		program:    prg,
	}
	q.canonical = q.buildCanonicalID()
	return q, nil
}

// MustNew is New for statically known queries; it panics on error.
func MustNew(collection string, filters []model.Filter, orderBy []model.OrderBy) *Query {
	q, err := New(collection, filters, orderBy)
	if err != nil {
		panic(err)
	}
	return q
}

// Collection returns the collection the query reads.
func (q *Query) Collection() string { return q.collection }

// Filters returns a copy of the filters.
func (q *Query) Filters() []model.Filter {
	return append([]model.Filter(nil), q.filters...)
}

// OrderBy returns a copy of the explicit orderings.
func (q *Query) OrderBy() []model.OrderBy {
	return append([]model.OrderBy(nil), q.orderBy...)
}

// CanonicalID identifies equivalent queries; listeners on the same canonical
// ID share one view.
func (q *Query) CanonicalID() string { return q.canonical }

func (q *Query) String() string { return q.canonical }

// Matches reports whether doc belongs to the query result.
func (q *Query) Matches(doc *model.Document) bool {
	if doc == nil || !doc.Exists() {
		return false
	}
	if doc.Key().Collection != q.collection {
		return false
	}
	return evaluate(q.program, doc.Data())
}

// Compare orders two documents by the OrderBy clauses, then by key.
func (q *Query) Compare(a, b *model.Document) int {
	for _, o := range q.orderBy {
		av, aok := a.Value(o.Field)
		bv, bok := b.Value(o.Field)
		c := compareOptional(av, aok, bv, bok)
		if o.Direction == model.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return a.Key().Compare(b.Key())
}

// buildCanonicalID renders the query with quoted names and typed literals, so
// 1 and "1" or a field named "a,b" never collide with something else.
func (q *Query) buildCanonicalID() string {
	var sb strings.Builder
	sb.WriteString(strconv.Quote(q.collection))
	if len(q.filters) > 0 {
		sb.WriteString("|f:")
		for i, f := range q.filters {
			if i > 0 {
				sb.WriteString(",")
			}
			// New already rejected values formatValue cannot render.
			val, _ := formatValue(f.Value)
			fmt.Fprintf(&sb, "%s %s %s", strconv.Quote(f.Field), f.Op, val)
		}
	}
	if len(q.orderBy) > 0 {
		sb.WriteString("|ob:")
		for i, o := range q.orderBy {
			if i > 0 {
				sb.WriteString(",")
			}
			dir := o.Direction
			if dir == "" {
				dir = model.Asc
			}
			fmt.Fprintf(&sb, "%s %s", strconv.Quote(o.Field), dir)
		}
	}
	return sb.String()
}
