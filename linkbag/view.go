package linkbag

import (
	"context"

	"github.com/leftmike/linkbag/rid"
)

// View is a read-only projection of a bag; its mutators fail with ErrImmutable.
type View struct {
	bag *Bag
}

func (b *Bag) View() View {
	return View{bag: b}
}

func (v View) Size() int {
	return v.bag.Size()
}

func (v View) Count(ctx context.Context, primary rid.Ref) (int, error) {
	return v.bag.Count(ctx, primary)
}

func (v View) Contains(ctx context.Context, primary rid.Ref) (bool, error) {
	return v.bag.Contains(ctx, primary)
}

func (v View) Members(ctx context.Context) ([]rid.Pair, error) {
	return v.bag.Members(ctx)
}

func (v View) Add(ctx context.Context, primary, secondary rid.Ref) error {
	return ErrImmutable
}

func (v View) Remove(ctx context.Context, primary rid.Ref) (bool, error) {
	return false, ErrImmutable
}
