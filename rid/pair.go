package rid

// Pair is a link collection member. Secondary equals Primary for a plain reference; a
// distinct Secondary is the neighboring vertex of a lightweight edge.
type Pair struct {
	Primary   Ref
	Secondary Ref
}

func MakePair(primary, secondary Ref) Pair {
	if secondary == nil {
		secondary = primary
	}
	return Pair{Primary: primary, Secondary: secondary}
}

// Compare orders pairs by primary key only.
func (p Pair) Compare(p2 Pair) int {
	return Compare(p.Primary, p2.Primary)
}

func (p Pair) IsLightweight() bool {
	return p.Secondary != nil && p.Secondary != p.Primary
}

func (p Pair) String() string {
	if !p.IsLightweight() {
		return p.Primary.String()
	}
	return p.Primary.String() + "->" + p.Secondary.String()
}
