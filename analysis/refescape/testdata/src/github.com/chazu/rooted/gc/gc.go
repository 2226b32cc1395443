package gc

type ID uint64

type Object interface{ gcHeader() *Header }

type Header struct{ id ID }

func (h *Header) gcHeader() *Header { return h }

type Tracer interface{ Edge(ID) }

type Heap struct{}

func (h *Heap) Enter() *Scope { return &Scope{} }

type Scope struct{}

func (s *Scope) Exit() {}

func (s *Scope) RootID(id ID) (*Root[Object], bool) { return nil, false }

type Edge[T Object] struct{ id ID }

func (e Edge[T]) Trace(tr Tracer) {}
func (e Edge[T]) Root(s *Scope) (*Root[T], bool) { return nil, false }
func (e *Edge[T]) Set(t Temp[T]) {}

type Root[T Object] struct{ obj T }

func (r *Root[T]) Borrow() Ref[T] { return Ref[T]{} }
func (r *Root[T]) Release() {}

type Ref[T Object] struct{ obj T }

func (r Ref[T]) Get() T { return r.obj }
func (r Ref[T]) Temp() Temp[T] { return Temp[T]{} }

type Temp[T Object] struct{ obj T }

func (t Temp[T]) Root(s *Scope) *Root[T] { return nil }

func New[T Object](h *Heap, obj T) Temp[T] { return Temp[T]{} }

func Erase[T Object](r Ref[T]) Ref[Object] { return Ref[Object]{} }
