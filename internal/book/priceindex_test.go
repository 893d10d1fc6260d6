package book

import "testing"

func TestPriceIndexGetOrInsertReturnsSameLevel(t *testing.T) {
	var idx PriceIndex

	a := idx.GetOrInsert(100)
	b := idx.GetOrInsert(100)
	if a != b {
		t.Fatal("GetOrInsert for the same price returned different levels")
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 level, got %d", idx.Len())
	}
}

func TestPriceIndexMinMaxCache(t *testing.T) {
	var idx PriceIndex

	prices := []uint64{50, 10, 70, 30, 90, 5, 100}
	for _, p := range prices {
		idx.GetOrInsert(p)
	}

	if got := idx.Min().Price; got != 5 {
		t.Errorf("expected min 5, got %d", got)
	}
	if got := idx.Max().Price; got != 100 {
		t.Errorf("expected max 100, got %d", got)
	}
}

func TestPriceIndexEraseUpdatesExtremaCache(t *testing.T) {
	var idx PriceIndex
	for _, p := range []uint64{10, 20, 30} {
		idx.GetOrInsert(p)
	}

	idx.Erase(10)
	if got := idx.Min().Price; got != 20 {
		t.Errorf("expected min 20 after erasing 10, got %d", got)
	}

	idx.Erase(30)
	if got := idx.Max().Price; got != 20 {
		t.Errorf("expected max 20 after erasing 30, got %d", got)
	}

	idx.Erase(20)
	if idx.Min() != nil || idx.Max() != nil || idx.Len() != 0 {
		t.Fatal("expected empty index after erasing all levels")
	}
}

func TestPriceIndexEraseAbsentIsNoop(t *testing.T) {
	var idx PriceIndex
	idx.GetOrInsert(10)
	idx.Erase(999) // absent; must not panic or corrupt state
	if idx.Len() != 1 {
		t.Fatalf("expected 1 level to remain, got %d", idx.Len())
	}
}

func TestPriceIndexFindAbsent(t *testing.T) {
	var idx PriceIndex
	idx.GetOrInsert(10)
	if idx.Find(20) != nil {
		t.Fatal("expected nil for absent price")
	}
}

func TestPriceIndexInorderAscendingWithLimit(t *testing.T) {
	var idx PriceIndex
	for _, p := range []uint64{40, 10, 30, 20} {
		idx.GetOrInsert(p)
	}

	var got []uint64
	idx.Inorder(func(l *PriceLevel) bool {
		got = append(got, l.Price)
		return true
	}, 0)

	want := []uint64{10, 20, 30, 40}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	var limited []uint64
	idx.Inorder(func(l *PriceLevel) bool {
		limited = append(limited, l.Price)
		return true
	}, 2)
	if len(limited) != 2 || limited[0] != 10 || limited[1] != 20 {
		t.Fatalf("expected early-stop at 2 visits, got %v", limited)
	}
}

// TestPriceIndexStaysBalancedUnderChurn exercises enough insert/erase
// churn that an unbalanced tree would degrade to near-linear height. It
// checks the height against a logarithmic bound (the number of factors
// of 1.4404 needed to reach n, plus 2), which is looser than the classic
// AVL bound of 1.44*log2(n+2) but far below a degenerate tree's height.
func TestPriceIndexStaysBalancedUnderChurn(t *testing.T) {
	var idx PriceIndex
	const n = 2000
	for i := 0; i < n; i++ {
		idx.GetOrInsert(uint64(i))
	}
	for i := 0; i < n; i += 2 {
		idx.Erase(uint64(i))
	}
	if idx.Len() != n/2 {
		t.Fatalf("expected %d remaining levels, got %d", n/2, idx.Len())
	}

	h := treeHeight(idx.root)
	maxHeight := 0
	for f := 1.0; f < float64(n); f *= 1.4404 {
		maxHeight++
	}
	maxHeight += 2
	if h > maxHeight {
		t.Fatalf("tree height %d exceeds AVL bound %d for n=%d", h, maxHeight, n)
	}
}

func treeHeight(n *priceNode) int {
	if n == nil {
		return 0
	}
	lh, rh := treeHeight(n.left), treeHeight(n.right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}
