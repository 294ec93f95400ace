package sqlinline

// Every image select returns the columns in this order:
// id, collection_id, user_id, status, storage_path, url, metadata,
// error_message, attempt, created_at, updated_at.

const QInsertPendingImage = `--sql a7843035-eeb2-4dab-af5f-5cd65aedbc60
insert into images (id, collection_id, user_id, status, metadata, attempt, created_at, updated_at)
values (gen_random_uuid(), $1::uuid, $2::uuid, 'pending', $3::jsonb, 1, now(), now())
returning id::text, collection_id::text, user_id::text, status,
    coalesce(storage_path, ''), coalesce(url, ''), metadata,
    coalesce(error_message, ''), attempt, created_at, updated_at;
`

const QSelectImageForUser = `--sql 286f624d-2839-46db-aa56-c026fdbf9aa8
select id::text, collection_id::text, user_id::text, status,
    coalesce(storage_path, ''), coalesce(url, ''), metadata,
    coalesce(error_message, ''), attempt, created_at, updated_at
from images
where id = $1::uuid
  and user_id = $2::uuid;
`

const QListImagesByCollection = `--sql f7303331-12d7-4286-a3e0-f5edcfabcfc1
select id::text, collection_id::text, user_id::text, status,
    coalesce(storage_path, ''), coalesce(url, ''), metadata,
    coalesce(error_message, ''), attempt, created_at, updated_at
from images
where collection_id = $1::uuid
  and user_id = $2::uuid
order by created_at asc;
`

// QCompleteImage and QFailImage only apply to the epoch that produced them.
const QCompleteImage = `--sql bf619376-73b4-4e8f-b9d6-f89a8755a8bd
update images
set status = 'completed',
    storage_path = $3::text,
    url = $4::text,
    metadata = $5::jsonb,
    error_message = null,
    updated_at = now()
where id = $1::uuid
  and attempt = $2::int
  and status = 'pending';
`

const QFailImage = `--sql 44f45aac-e528-4bde-9f43-fd300bd9e29e
update images
set status = 'failed',
    error_message = $3::text,
    updated_at = now()
where id = $1::uuid
  and attempt = $2::int
  and status = 'pending';
`

// QRetriggerImage is the compare-and-swap that opens a new epoch. It matches
// only when the caller observed the current attempt and the row is failed
// or has been pending since before $4.
const QRetriggerImage = `--sql 76d98bd7-a1a7-4be0-aa0a-eb2f318ed4ba
update images
set status = 'pending',
    attempt = attempt + 1,
    error_message = null,
    storage_path = null,
    url = null,
    updated_at = now()
where id = $1::uuid
  and user_id = $2::uuid
  and attempt = $3::int
  and (status = 'failed' or (status = 'pending' and updated_at < $4::timestamptz))
returning id::text, collection_id::text, user_id::text, status,
    coalesce(storage_path, ''), coalesce(url, ''), metadata,
    coalesce(error_message, ''), attempt, created_at, updated_at;
`

const QFailStalePending = `--sql 9d8715f8-7a46-4cd0-b34a-7d6c3bd075f1
update images
set status = 'failed',
    error_message = $2::text,
    updated_at = now()
where status = 'pending'
  and updated_at < $1::timestamptz
returning id::text, collection_id::text;
`

const QDeleteImagesByCollection = `--sql 89a3174b-bb09-49bd-b2b8-ae5e35acba0b
delete from images
where collection_id = $1::uuid
  and user_id = $2::uuid;
`

const QDeleteImage = `--sql 7efe9f8d-ab2d-431a-8a04-4263ee1c7e89
delete from images
where id = $1::uuid
  and user_id = $2::uuid;
`
