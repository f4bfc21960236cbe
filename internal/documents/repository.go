package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivum-dms/archivum/internal/shared"
)

// Repository persists the containment hierarchy and document versions.
type Repository interface {
	GetCabinet(ctx context.Context, id int64) (Cabinet, error)
	CreateCabinet(ctx context.Context, c *Cabinet) error
	UpdateCabinet(ctx context.Context, id int64, name, description string) (Cabinet, error)
	ListCabinets(ctx context.Context, limit, offset int) ([]Cabinet, error)

	GetFolder(ctx context.Context, id int64) (Folder, error)
	CreateFolder(ctx context.Context, f *Folder) error
	RenameFolder(ctx context.Context, id int64, name string) (Folder, error)
	MoveFolder(ctx context.Context, id int64, cabinetID int64, parentFolderID *int64) (Folder, error)
	SetFolderBreak(ctx context.Context, id int64, breaks bool) (Folder, error)
	ChildFolders(ctx context.Context, cabinetID int64, parentFolderID *int64) ([]Folder, error)

	GetDocument(ctx context.Context, id int64) (Document, error)
	CreateDocument(ctx context.Context, d *Document) error
	UpdateDocument(ctx context.Context, id int64, title string, status Status) (Document, error)
	MoveDocument(ctx context.Context, id int64, folderID int64) (Document, error)
	SetDocumentBreak(ctx context.Context, id int64, breaks bool) (Document, error)
	DocumentsInFolder(ctx context.Context, folderID int64, limit, offset int) ([]Document, error)

	AddVersion(ctx context.Context, v *Version) error
	Versions(ctx context.Context, documentID int64) ([]Version, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const cabinetColumns = `id, name, description, created_by, created_at, updated_at`

func (r *pgRepository) GetCabinet(ctx context.Context, id int64) (Cabinet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+cabinetColumns+` FROM cabinets WHERE id = $1`, id)
	return scanCabinet(row)
}

func (r *pgRepository) CreateCabinet(ctx context.Context, c *Cabinet) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO cabinets (name, description, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		c.Name, c.Description, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cabinet: %w", err)
	}
	return nil
}

func (r *pgRepository) UpdateCabinet(ctx context.Context, id int64, name, description string) (Cabinet, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE cabinets SET name = $2, description = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+cabinetColumns, id, name, description)
	return scanCabinet(row)
}

func (r *pgRepository) ListCabinets(ctx context.Context, limit, offset int) ([]Cabinet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+cabinetColumns+` FROM cabinets ORDER BY name LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cabinets: %w", err)
	}
	defer rows.Close()

	var out []Cabinet
	for rows.Next() {
		c, err := scanCabinet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const folderColumns = `id, cabinet_id, parent_folder_id, name, breaks_inheritance, created_by, created_at, updated_at`

func (r *pgRepository) GetFolder(ctx context.Context, id int64) (Folder, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = $1`, id)
	return scanFolder(row)
}

func (r *pgRepository) CreateFolder(ctx context.Context, f *Folder) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO folders (cabinet_id, parent_folder_id, name, breaks_inheritance, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		f.CabinetID, f.ParentFolderID, f.Name, f.BreaksInheritance, f.CreatedBy,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert folder: %w", err)
	}
	return nil
}

func (r *pgRepository) RenameFolder(ctx context.Context, id int64, name string) (Folder, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE folders SET name = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+folderColumns, id, name)
	return scanFolder(row)
}

func (r *pgRepository) MoveFolder(ctx context.Context, id int64, cabinetID int64, parentFolderID *int64) (Folder, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE folders SET cabinet_id = $2, parent_folder_id = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+folderColumns, id, cabinetID, parentFolderID)
	return scanFolder(row)
}

func (r *pgRepository) SetFolderBreak(ctx context.Context, id int64, breaks bool) (Folder, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE folders SET breaks_inheritance = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+folderColumns, id, breaks)
	return scanFolder(row)
}

func (r *pgRepository) ChildFolders(ctx context.Context, cabinetID int64, parentFolderID *int64) ([]Folder, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if parentFolderID == nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+folderColumns+` FROM folders
			 WHERE cabinet_id = $1 AND parent_folder_id IS NULL ORDER BY name`, cabinetID)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+folderColumns+` FROM folders
			 WHERE cabinet_id = $1 AND parent_folder_id = $2 ORDER BY name`, cabinetID, *parentFolderID)
	}
	if err != nil {
		return nil, fmt.Errorf("list child folders: %w", err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const documentColumns = `id, folder_id, title, ref_code, status, breaks_inheritance, current_version, created_by, created_at, updated_at`

func (r *pgRepository) GetDocument(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (r *pgRepository) CreateDocument(ctx context.Context, d *Document) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO documents (folder_id, title, ref_code, status, breaks_inheritance, current_version, created_by)
		 VALUES ($1, $2, $3, $4, $5, 0, $6)
		 RETURNING id, created_at, updated_at`,
		d.FolderID, d.Title, d.RefCode, d.Status, d.BreaksInheritance, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *pgRepository) UpdateDocument(ctx context.Context, id int64, title string, status Status) (Document, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE documents SET title = $2, status = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+documentColumns, id, title, status)
	return scanDocument(row)
}

func (r *pgRepository) MoveDocument(ctx context.Context, id int64, folderID int64) (Document, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE documents SET folder_id = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+documentColumns, id, folderID)
	return scanDocument(row)
}

func (r *pgRepository) SetDocumentBreak(ctx context.Context, id int64, breaks bool) (Document, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE documents SET breaks_inheritance = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+documentColumns, id, breaks)
	return scanDocument(row)
}

func (r *pgRepository) DocumentsInFolder(ctx context.Context, folderID int64, limit, offset int) ([]Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE folder_id = $1 ORDER BY title LIMIT $2 OFFSET $3`,
		folderID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *pgRepository) AddVersion(ctx context.Context, v *Version) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin version tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE documents SET current_version = current_version + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING current_version`, v.DocumentID,
	).Scan(&v.VersionNo)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("bump document version: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO document_versions (document_id, version_no, file_name, content_type, size_bytes, storage_key, comment, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		v.DocumentID, v.VersionNo, v.FileName, v.ContentType, v.SizeBytes, v.StorageKey, v.Comment, v.CreatedBy,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit version tx: %w", err)
	}
	return nil
}

func (r *pgRepository) Versions(ctx context.Context, documentID int64) ([]Version, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, document_id, version_no, file_name, content_type, size_bytes, storage_key, comment, created_by, created_at
		 FROM document_versions
		 WHERE document_id = $1
		 ORDER BY version_no DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.VersionNo, &v.FileName, &v.ContentType,
			&v.SizeBytes, &v.StorageKey, &v.Comment, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanCabinet(row pgx.Row) (Cabinet, error) {
	var c Cabinet
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Cabinet{}, shared.ErrNotFound
	}
	if err != nil {
		return Cabinet{}, fmt.Errorf("scan cabinet: %w", err)
	}
	return c, nil
}

func scanFolder(row pgx.Row) (Folder, error) {
	var f Folder
	err := row.Scan(&f.ID, &f.CabinetID, &f.ParentFolderID, &f.Name, &f.BreaksInheritance,
		&f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Folder{}, shared.ErrNotFound
	}
	if err != nil {
		return Folder{}, fmt.Errorf("scan folder: %w", err)
	}
	return f, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.FolderID, &d.Title, &d.RefCode, &d.Status, &d.BreaksInheritance,
		&d.CurrentVersion, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("scan document: %w", err)
	}
	return d, nil
}
