package document

import "fmt"

// walkPages performs the recursive page-tree walk from /Root.Pages,
// populating PageIndex in depth-first left-to-right order (invariant 5).
// A page inherits MediaBox from the nearest ancestor that defines one.
func (d *Document) walkPages() error {
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return ErrMissingRoot
	}
	rootObj, err := d.Resolve(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingRoot, err)
	}
	if rootObj == nil || rootObj.Value.Kind != KindDict {
		return ErrMissingRoot
	}

	pagesVal, ok := rootObj.Value.Dict.Get("Pages")
	if !ok {
		return ErrInvalidTree
	}
	pagesObj, err := d.Resolve(pagesVal)
	if err != nil {
		return err
	}
	if pagesObj == nil {
		return ErrInvalidTree
	}

	d.PageIndex = d.PageIndex[:0]
	return d.walkPageNode(pagesObj, [4]float64{})
}

func dictType(v Value) (string, bool) {
	if v.Kind != KindDict {
		return "", false
	}
	t, ok := v.Dict.Get("Type")
	if !ok || t.Kind != KindName {
		return "", false
	}
	return t.Str, true
}

func mediaBoxOf(v Value) ([4]float64, bool) {
	mb, ok := v.Dict.Get("MediaBox")
	if !ok || mb.Kind != KindArray || len(mb.Arr) != 4 {
		return [4]float64{}, false
	}
	var out [4]float64
	for i, e := range mb.Arr {
		switch e.Kind {
		case KindInt:
			out[i] = float64(e.Int)
		case KindReal:
			out[i] = e.Real
		default:
			return [4]float64{}, false
		}
	}
	return out, true
}

func (d *Document) walkPageNode(node *Object, inherited [4]float64) error {
	v := node.Value
	if v.Kind != KindDict {
		return ErrInvalidTree
	}
	if mb, ok := mediaBoxOf(v); ok {
		inherited = mb
	}

	typeName, _ := dictType(v)
	switch typeName {
	case "Pages":
		kidsVal, ok := v.Dict.Get("Kids")
		if !ok {
			return ErrInvalidTree
		}
		kids, err := d.resolveKidsList(kidsVal)
		if err != nil {
			return err
		}
		for _, kidRef := range kids {
			kidObj, err := d.Resolve(kidRef)
			if err != nil {
				return err
			}
			if kidObj == nil {
				continue
			}
			if err := d.walkPageNode(kidObj, inherited); err != nil {
				return err
			}
		}
		return nil
	case "Page":
		d.PageIndex = append(d.PageIndex, PageEntry{OID: node.OID, MediaBox: inherited})
		return nil
	default:
		return ErrInvalidTree
	}
}

// resolveKidsList requires /Kids to be an array whose entries are each
// individually an indirect reference (MixedReference is for a single
// expected reference; this is the array-of-refs case itself, which must
// parse as refs or the tree is malformed).
func (d *Document) resolveKidsList(v Value) ([]Value, error) {
	if v.Kind != KindArray {
		return nil, ErrInvalidTree
	}
	for _, e := range v.Arr {
		if e.Kind != KindRef {
			return nil, ErrInvalidTree
		}
	}
	return v.Arr, nil
}
