package sqlinline

const QSelectProfileGeminiKey = `--sql 860544e9-80c2-45e2-967b-f2f1a730b70f
select coalesce(gemini_api_key, '')
from profiles
where id = $1::uuid;
`

const QUpsertProfileGeminiKey = `--sql 3fd9f4ae-831c-40d4-9f53-5b81ccc821bf
insert into profiles (id, gemini_api_key, updated_at)
values ($1::uuid, $2::text, now())
on conflict (id) do update set
    gemini_api_key = excluded.gemini_api_key,
    updated_at = now();
`
