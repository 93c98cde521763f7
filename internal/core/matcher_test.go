package core_test

import (
	"errors"
	"slices"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/toejough/forktest/internal/core"
	"pgregory.net/rapid"
)

// TestAny_MatchesEverything verifies Any accepts arbitrary values, including nil.
func TestAny_MatchesEverything(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		value := rapid.OneOf(
			rapid.Int().AsAny(),
			rapid.String().AsAny(),
			rapid.Just[any](nil),
		).Draw(rt, "value")

		ok, msg := core.MatchValue(value, core.Any())
		if !ok || msg != "" {
			rt.Fatalf("Any rejected %#v: %s", value, msg)
		}
	})
}

// TestCompare_Ops verifies numeric comparisons delegate to gomega's BeNumerically.
func TestCompare_Ops(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, _ := core.MatchValue(5, core.Compare(">", 3))
	g.Expect(ok).To(BeTrue())

	ok, msg := core.MatchValue(2, core.Compare(">=", 3))
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).NotTo(BeEmpty())

	ok, _ = core.MatchValue(3.01, core.Compare("~", 3.0, 0.1))
	g.Expect(ok).To(BeTrue())

	g.Expect(core.Describe(core.Compare("<", 7))).To(Equal("< 7"))
}

// TestCompare_NonNumeric verifies a non-numeric actual reports an error message instead of panicking.
func TestCompare_NonNumeric(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, msg := core.MatchValue("five", core.Compare("==", 5))
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).To(ContainSubstring("== 5"))
}

// TestDescribe verifies descriptions of the built-in constraints.
func TestDescribe(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	g.Expect(core.Describe(nil)).To(Equal("_"))
	g.Expect(core.Describe(core.Any())).To(Equal("_"))
	g.Expect(core.Describe(core.Equal(1))).To(Equal("== 1"))
	g.Expect(core.Describe(core.MatchPattern("^a"))).To(Equal("=~ /^a/"))
	g.Expect(core.Describe(core.Satisfy(func(int) error { return nil }))).To(Equal("satisfies func(int)"))
	g.Expect(core.Describe(BeTrue())).To(HavePrefix("matches "))
}

// TestEqual_DeepEquality verifies Equal is reflexive over generated values.
func TestEqual_DeepEquality(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		value := rapid.SliceOf(rapid.String()).Draw(rt, "value")
		copied := slices.Clone(value)

		ok, msg := core.MatchValue(copied, core.Equal(value))
		if !ok {
			rt.Fatalf("Equal(%#v) rejected its copy: %s", value, msg)
		}
	})
}

// TestEqual_NilVersusEmptySlice verifies Equal tells a nil slice from an empty one, while an
// untyped nil still equals a nil slice.
func TestEqual_NilVersusEmptySlice(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, _ := core.MatchValue([]string(nil), core.Equal([]string{}))
	g.Expect(ok).To(BeFalse())

	ok, _ = core.MatchValue([]string{}, core.Equal([]string{}))
	g.Expect(ok).To(BeTrue())

	ok, _ = core.MatchValue([]string(nil), core.Equal(nil))
	g.Expect(ok).To(BeTrue())
}

// TestEqual_MultilineDiff verifies mismatched multi-line strings produce a unified diff.
func TestEqual_MultilineDiff(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, msg := core.MatchValue("a\nb\n", core.Equal("a\nc\n"))
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).To(ContainSubstring("-c"))
	g.Expect(msg).To(ContainSubstring("+b"))
}

// TestEqual_TypedNil verifies a typed nil equals an untyped nil.
func TestEqual_TypedNil(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	var ptr *int

	ok, _ := core.MatchValue(ptr, core.Equal(nil))
	g.Expect(ok).To(BeTrue())

	ok, msg := core.MatchValue(1, core.Equal(2))
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).To(Equal("expected 2, got 1"))
}

// TestGomegaMatcher_IsConstraint verifies gomega matchers are accepted directly.
func TestGomegaMatcher_IsConstraint(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, _ := core.MatchValue([]int{1, 2}, ContainElement(2))
	g.Expect(ok).To(BeTrue())

	ok, msg := core.MatchValue([]int{1, 2}, ContainElement(3))
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).NotTo(BeEmpty())
}

// TestMatchPattern verifies regexp matching and its failure message.
func TestMatchPattern(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, _ := core.MatchValue("apple", core.MatchPattern("^a"))
	g.Expect(ok).To(BeTrue())

	ok, _ = core.MatchValue("banana", core.MatchPattern("^a"))
	g.Expect(ok).To(BeFalse())
}

// TestMatchValue_NilConstraint verifies a nil constraint is "don't care".
func TestMatchValue_NilConstraint(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	ok, msg := core.MatchValue(42, nil)
	g.Expect(ok).To(BeTrue())
	g.Expect(msg).To(BeEmpty())
}

// TestSatisfy verifies predicate results, the predicate's error in the message, and type mismatches.
func TestSatisfy(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	errOdd := errors.New("odd")
	even := core.Satisfy(func(n int) error {
		if n%2 != 0 {
			return errOdd
		}

		return nil
	})

	ok, _ := core.MatchValue(4, even)
	g.Expect(ok).To(BeTrue())

	ok, msg := core.MatchValue(3, even)
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).To(ContainSubstring("odd"))

	ok, msg = core.MatchValue("4", even)
	g.Expect(ok).To(BeFalse())
	g.Expect(msg).To(ContainSubstring("type mismatch"))
}
