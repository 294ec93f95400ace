package sqlinline

// QEnsureSchema creates the tables when they do not exist yet. It carries no
// parameters so pgx sends it over the simple protocol as one batch.
const QEnsureSchema = `--sql 1669fd03-095f-4e24-b501-2e06e6d94b2f
create table if not exists profiles (
    id uuid primary key,
    gemini_api_key text,
    updated_at timestamptz not null default now()
);

create table if not exists collections (
    id uuid primary key,
    user_id uuid not null,
    name text not null,
    status text not null default 'processing',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists collections_user_idx on collections (user_id, created_at desc);

create table if not exists images (
    id uuid primary key,
    collection_id uuid not null references collections (id) on delete cascade,
    user_id uuid not null,
    status text not null check (status in ('pending', 'completed', 'failed')),
    storage_path text,
    url text,
    metadata jsonb not null default '{}'::jsonb,
    error_message text,
    attempt int not null default 1,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists images_collection_idx on images (collection_id, created_at);
create index if not exists images_pending_idx on images (updated_at) where status = 'pending';

create table if not exists video_prompts (
    id uuid primary key,
    image_id uuid not null references images (id) on delete cascade,
    user_id uuid not null,
    prompt text not null,
    created_at timestamptz not null default now()
);
`
