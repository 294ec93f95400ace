package sqlinline

const QInsertCollection = `--sql 7b589c65-a568-4bcd-92a4-353b29db40ea
insert into collections (id, user_id, name, status, created_at, updated_at)
values (gen_random_uuid(), $1::uuid, $2::text, 'processing', now(), now())
returning id::text, user_id::text, name, status, created_at, updated_at;
`

const QSelectCollectionForUser = `--sql f2c31ae5-b2f3-4722-bb75-2d5b6f9cf6d4
select id::text, user_id::text, name, status, created_at, updated_at
from collections
where id = $1::uuid
  and user_id = $2::uuid;
`

const QListCollectionsByUser = `--sql fb223a84-9faa-4719-8c49-6c4c27cc5e82
select id::text, user_id::text, name, status, created_at, updated_at
from collections
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

// QRefreshCollectionStatus recomputes the aggregate status from the owned
// images in a single statement.
const QRefreshCollectionStatus = `--sql a2610a03-413d-41d0-ae7e-b06610728e5b
with agg as (
    select
        count(*)                                     as total,
        count(*) filter (where status = 'pending')   as pending,
        count(*) filter (where status = 'completed') as completed,
        count(*) filter (where status = 'failed')    as failed
    from images
    where collection_id = $1::uuid
)
update collections c
set status = case
        when agg.total = 0 then 'empty'
        when agg.pending > 0 then 'processing'
        when agg.completed = agg.total then 'completed'
        when agg.failed = agg.total then 'failed'
        else 'partial'
    end,
    updated_at = now()
from agg
where c.id = $1::uuid;
`

const QDeleteCollection = `--sql 53e5b67f-bfbc-49b5-8cb3-79213a864ff0
delete from collections
where id = $1::uuid
  and user_id = $2::uuid;
`
